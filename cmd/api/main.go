package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/api"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/config"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/database"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/metrics"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/repository"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting ClientPulse webhooks API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.Bool("worker_enabled", cfg.WorkerEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer pool.Close()

	// Stores
	webhooks := repository.NewWebhookRepository(pool)
	queue := repository.NewQueueRepository(pool)
	deliveryLogs := repository.NewDeliveryLogRepository(pool)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics := metrics.NewDispatchMetrics(registry)
	aggregator := metrics.NewAggregator(metrics.NewRepository(pool), dispatchMetrics, logger, cfg.MetricsInterval)

	// Delivery
	delivererOpts := []webhook.DelivererOption{
		webhook.WithTimeout(cfg.DeliveryTimeout),
		webhook.WithUserAgent(cfg.UserAgent),
	}
	if !cfg.AllowPrivateDestinations {
		delivererOpts = append(delivererOpts, webhook.WithPublicAddressesOnly())
	}
	deliverer := webhook.NewDeliverer(delivererOpts...)
	dispatcher := webhook.NewDispatcher(queue, webhooks, deliveryLogs, deliverer,
		webhook.DispatcherConfig{
			BatchSize:       cfg.DispatchBatchSize,
			MaxConcurrency:  cfg.MaxConcurrency(),
			FailureCeiling:  cfg.FailureCeiling,
			ProcessingLease: cfg.ProcessingLease,
		},
		logger,
		webhook.WithRecorder(dispatchMetrics),
	)
	policy := webhook.NewURLPolicy(cfg.AllowPrivateDestinations)

	deps := &api.Dependencies{
		DB:                    pool,
		Webhooks:              webhooks,
		DeliveryLogs:          deliveryLogs,
		Queue:                 queue,
		URLPolicy:             policy,
		Dispatcher:            dispatcher,
		Producer:              webhook.NewProducer(queue, cfg.DefaultMaxAttempts, logger),
		Tester:                webhook.NewTester(policy, deliverer),
		Gatherer:              registry,
		Aggregator:            aggregator,
		InternalSecret:        cfg.InternalDispatchSecret,
		OperatorAPIKey:        cfg.OperatorAPIKey,
		TestDeliveryRateLimit: cfg.TestDeliveryRateLimit,
	}
	if cfg.WorkerEnabled {
		deps.Worker = webhook.NewWorker(dispatcher, cfg.WorkerInterval, logger)
	}

	// Setup router
	router := api.NewRouter(logger, deps)
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(shutdownTimeout); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")

	return nil
}
