package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mongopulse/anomaly-engine/internal/config"
	"github.com/mongopulse/anomaly-engine/internal/metrics"
	"github.com/mongopulse/anomaly-engine/internal/models"
	"github.com/mongopulse/anomaly-engine/internal/pipeline"
	"github.com/mongopulse/anomaly-engine/internal/utils"
)

// Publisher delivers an assembled result downstream. The returned bool is
// informational only: delivery failure never blocks acknowledgment.
type Publisher interface {
	Publish(ctx context.Context, result models.AnalysisResult) bool
}

// acknowledger covers the two delivery outcomes the handler can produce.
type acknowledger interface {
	// Ack marks the message as processed.
	Ack() error
	// Reject drops the message without requeueing it.
	Reject() error
}

// Consumer runs the message loop: connect to the broker (retrying forever),
// declare the durable queue, then process deliveries one at a time. A
// message is fully decoded, analyzed, published, and acknowledged before the
// next one is received, which is what lets the detector stay lock-free.
type Consumer struct {
	cfg       config.BrokerConfig
	analyzer  *pipeline.Analyzer
	publisher Publisher
	logger    *slog.Logger
	latencies *utils.LatencyTracker
}

// New constructs a consumer around an analyzer and a sink publisher.
func New(cfg config.BrokerConfig, analyzer *pipeline.Analyzer, publisher Publisher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = config.Duration(5 * time.Second)
	}
	return &Consumer{
		cfg:       cfg,
		analyzer:  analyzer,
		publisher: publisher,
		logger:    logger,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Run drives the consume loop until the context is cancelled. Lost broker
// connections are re-established with the same unbounded retry as the
// initial connect; Run only returns the context's error.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		if err := c.consume(ctx, conn); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("consume loop interrupted, reconnecting", slog.Any("error", err))
			continue
		}

		_ = conn.Close()
		return ctx.Err()
	}
}

// connect dials the broker, retrying indefinitely at a fixed delay. The
// queue is assumed eventually reachable; only cancellation stops the loop.
func (c *Consumer) connect(ctx context.Context) (*amqp.Connection, error) {
	var conn *amqp.Connection
	attempt := func() error {
		var err error
		conn, err = amqp.Dial(c.cfg.URL())
		if err != nil {
			c.logger.Warn("broker not ready, retrying",
				slog.String("host", c.cfg.Host),
				slog.Int("port", c.cfg.Port),
				slog.Duration("delay", c.cfg.RetryDelay.Duration()),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.RetryDelay.Duration()), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, utils.NewAppError("consumer.connect", "broker connect abandoned", err)
	}

	c.logger.Info("connected to broker",
		slog.String("host", c.cfg.Host),
		slog.Int("port", c.cfg.Port),
		slog.String("queue", c.cfg.Queue))
	return conn, nil
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	channel, err := conn.Channel()
	if err != nil {
		return utils.NewAppError("consumer.consume", "open channel", err)
	}
	defer channel.Close()

	if _, err := channel.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return utils.NewAppError("consumer.consume", "declare queue", err)
	}

	tag := "anomaly-engine-" + uuid.NewString()
	deliveries, err := channel.Consume(c.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return utils.NewAppError("consumer.consume", "start consuming", err)
	}

	c.logger.Info("consuming logs, waiting for messages", slog.String("consumer_tag", tag))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, open := <-deliveries:
			if !open {
				return utils.NewAppError("consumer.consume", "delivery channel closed", nil)
			}
			c.handleMessage(ctx, delivery.Body, amqpAck{delivery: delivery})
		}
	}
}

// handleMessage processes a single delivery end to end. Malformed payloads
// are rejected without requeue; well-formed ones are always acknowledged
// after the publish attempt, whatever its outcome (at-most-once to the
// sink).
func (c *Consumer) handleMessage(ctx context.Context, body []byte, ack acknowledger) {
	start := time.Now()

	var record models.LogRecord
	if err := json.Unmarshal(body, &record); err != nil {
		c.logger.Warn("dropping undecodable message", slog.Any("error", err))
		if rejectErr := ack.Reject(); rejectErr != nil {
			c.logger.Warn("reject failed", slog.Any("error", rejectErr))
		}
		metrics.ObserveMessage(time.Since(start), metrics.OutcomeDropped)
		return
	}

	result := c.analyzer.Analyze(ctx, record)
	published := c.publisher.Publish(ctx, result)

	if published && result.IsAnomaly {
		c.logger.Info("anomaly detected", slog.String("msg", truncate(record.Message(), 50)))
	}

	if err := ack.Ack(); err != nil {
		c.logger.Warn("ack failed", slog.Any("error", err))
	}

	elapsed := time.Since(start)
	metrics.ObserveMessage(elapsed, metrics.OutcomeAnalyzed)
	c.latencies.Observe(elapsed)
	if count := c.latencies.Count(); count >= 100 && count%100 == 0 {
		c.logger.Debug("processing latency",
			slog.Int("messages", count),
			slog.Duration("p95", c.latencies.Percentile(95)))
	}
}

// amqpAck adapts an AMQP delivery to the acknowledger interface.
type amqpAck struct {
	delivery amqp.Delivery
}

func (a amqpAck) Ack() error { return a.delivery.Ack(false) }

// Reject nacks without requeue: an undecodable body is non-recoverable.
func (a amqpAck) Reject() error { return a.delivery.Nack(false, false) }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
