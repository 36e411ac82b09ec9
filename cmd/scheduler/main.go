package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/config"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	once := flag.Bool("once", false, "Trigger a single dispatch cycle and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadScheduler()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment).With(slog.String("component", "scheduler"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trigger := scheduler.NewTrigger(cfg.DispatchURL, cfg.InternalDispatchSecret, cfg.RequestTimeout)
	svc := scheduler.NewService(trigger, logger, cfg.Interval)

	if *once {
		if !svc.RunOnce(ctx) {
			return errors.New("dispatch invocation failed")
		}
		return nil
	}

	logger.Info("starting dispatch scheduler",
		slog.String("dispatch_url", cfg.DispatchURL),
		slog.Duration("interval", cfg.Interval),
	)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
