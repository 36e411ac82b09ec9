package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CycleRunner runs one dispatch cycle. *Dispatcher implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*CycleResult, error)
}

// Worker drives dispatch cycles in-process on a fixed interval, for
// deployments without an external scheduler.
type Worker struct {
	runner   CycleRunner
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewWorker(runner CycleRunner, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) tick(ctx context.Context) {
	result, err := w.runner.RunCycle(ctx)
	if err != nil {
		w.logger.Error("failed to process webhook queue", "error", err)
		return
	}
	if result.Claimed > 0 {
		w.logger.Debug("webhook worker cycle", "processed", result.Claimed)
	}
}
