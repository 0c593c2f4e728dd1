package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Message outcome labels.
const (
	OutcomeAnalyzed = "analyzed"
	OutcomeDropped  = "dropped"
)

// Publish outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anomaly_engine",
			Name:      "messages_total",
			Help:      "Total consumed messages, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "anomaly_engine",
			Name:      "anomalies_total",
			Help:      "Total records flagged as anomalous.",
		},
	)

	sinkPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anomaly_engine",
			Name:      "sink_publishes_total",
			Help:      "Total sink delivery attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	processingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "anomaly_engine",
			Name:      "processing_seconds",
			Help:      "Per-message processing latency in seconds, decode through acknowledgment.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
	)

	modelTrained = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "anomaly_engine",
			Name:      "model_trained",
			Help:      "1 once the isolation forest has been fitted.",
		},
	)
)

// Register attaches the engine's collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		messagesTotal,
		anomaliesTotal,
		sinkPublishesTotal,
		processingSeconds,
		modelTrained,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveMessage records a processed message with its latency and outcome.
func ObserveMessage(duration time.Duration, outcome string) {
	messagesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	processingSeconds.Observe(duration.Seconds())
}

// ObserveAnomaly counts a flagged record.
func ObserveAnomaly() {
	anomaliesTotal.Inc()
}

// ObservePublish records a sink delivery attempt.
func ObservePublish(ok bool) {
	label := OutcomeSuccess
	if !ok {
		label = OutcomeFailure
	}
	sinkPublishesTotal.WithLabelValues(label).Inc()
}

// SetModelTrained flips the trained gauge.
func SetModelTrained(trained bool) {
	if trained {
		modelTrained.Set(1)
	} else {
		modelTrained.Set(0)
	}
}
