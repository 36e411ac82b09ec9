package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// DepthSource reports queue rows per status.
type DepthSource interface {
	QueueDepth(ctx context.Context) (map[domain.EventStatus]int64, error)
}

// Aggregator periodically refreshes the queue depth gauge
type Aggregator struct {
	source   DepthSource
	metrics  *DispatchMetrics
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewAggregator creates a new metrics aggregator worker
func NewAggregator(source DepthSource, metrics *DispatchMetrics, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		source:   source,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start refreshes once immediately, then on every tick until stopped.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Aggregator) aggregate(ctx context.Context) {
	counts, err := a.source.QueueDepth(ctx)
	if err != nil {
		a.logger.Error("failed to read webhook queue depth", "error", err)
		return
	}

	a.metrics.SetQueueDepth(counts)
	a.logger.Debug("webhook queue depth refreshed",
		"pending", counts[domain.EventPending],
		"processing", counts[domain.EventProcessing],
		"failed", counts[domain.EventFailed],
	)
}
