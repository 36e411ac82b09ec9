package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const defaultInterval = time.Minute

// Invoker runs one dispatch cycle.
type Invoker interface {
	Invoke(ctx context.Context) (int, error)
}

// Service calls the dispatch entry point on a fixed cadence. Cycles that
// overlap with other schedulers or the in-process worker are safe because the
// claim is atomic in the database.
type Service struct {
	invoker  Invoker
	logger   *slog.Logger
	interval time.Duration
}

func NewService(invoker Invoker, logger *slog.Logger, interval time.Duration) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{invoker: invoker, logger: logger, interval: interval}
}

// Run triggers a cycle immediately and then on every tick until the context
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce triggers one cycle and logs its outcome. It reports whether the
// invocation succeeded.
func (s *Service) RunOnce(ctx context.Context) bool {
	start := time.Now()
	processed, err := s.invoker.Invoke(ctx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("dispatch invocation failed",
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return false
	}

	s.logger.Info("dispatch invocation completed",
		"processed", processed,
		"duration_ms", duration.Milliseconds(),
	)
	return true
}
