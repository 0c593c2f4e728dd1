package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mongopulse/anomaly-engine/internal/anomaly"
	"github.com/mongopulse/anomaly-engine/internal/cache"
	"github.com/mongopulse/anomaly-engine/internal/config"
	"github.com/mongopulse/anomaly-engine/internal/consumer"
	"github.com/mongopulse/anomaly-engine/internal/entities"
	"github.com/mongopulse/anomaly-engine/internal/metrics"
	"github.com/mongopulse/anomaly-engine/internal/pipeline"
	"github.com/mongopulse/anomaly-engine/internal/sink"
	"github.com/mongopulse/anomaly-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting anomaly-engine",
		slog.String("queue", cfg.Broker.Queue),
		slog.String("sink", cfg.Sink.BaseURL))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout.Duration(),
			ReadTimeout:  cfg.Cache.ReadTimeout.Duration(),
			WriteTimeout: cfg.Cache.WriteTimeout.Duration(),
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	// The NER capability is resolved exactly once: either an HTTP client or
	// nothing. The extractor degrades silently when it is absent.
	var nerCapability entities.Capability
	if cfg.NER.Endpoint != "" {
		nerCapability = entities.NewHTTPCapability(cfg.NER.Endpoint, cfg.NER.APIKey, cfg.NER.Timeout.Duration(), cacheProvider, cfg.NER.CacheTTL.Duration())
		logger.Info("ner capability enabled", slog.String("endpoint", cfg.NER.Endpoint))
	} else {
		logger.Info("ner capability not configured, entity enrichment limited to heuristics")
	}

	detector := anomaly.NewDetector(cfg.Model.WindowCapacity, cfg.Model.TrainThreshold, logger)
	entityExtractor := entities.NewExtractor(nerCapability, logger)
	analyzer := pipeline.NewAnalyzer(logger, detector, entityExtractor)
	publisher := sink.NewPublisher(cfg.Sink.BaseURL, cfg.Sink.LogsPath, cfg.Sink.Timeout.Duration(), logger)
	streamConsumer := consumer.New(cfg.Broker, analyzer, publisher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- streamConsumer.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer exited", slog.Any("error", err))
		}
		stop()
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout.Duration())
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("anomaly-engine stopped")
}
