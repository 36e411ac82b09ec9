package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

type stubDepth struct {
	calls  atomic.Int32
	counts map[domain.EventStatus]int64
	err    error
}

func (s *stubDepth) QueueDepth(context.Context) (map[domain.EventStatus]int64, error) {
	s.calls.Add(1)
	return s.counts, s.err
}

func TestAggregator_RefreshesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	src := &stubDepth{counts: map[domain.EventStatus]int64{domain.EventPending: 4}}

	a := NewAggregator(src, m, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		a.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	a.Stop()
	a.Stop()
	<-done

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchGaugeValue(mfs, "clientpulse_webhook_queue_events", "status", "pending")
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)
}

func TestAggregator_SourceErrorKeepsRunning(t *testing.T) {
	src := &stubDepth{err: errors.New("db down")}
	a := NewAggregator(src, NewDispatchMetrics(nil), slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRepository_QueueDepth(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM webhook_queue GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", int64(12)).
			AddRow("failed", int64(3)))

	counts, err := NewRepository(mock).QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), counts[domain.EventPending])
	assert.Equal(t, int64(3), counts[domain.EventFailed])
	assert.Zero(t, counts[domain.EventProcessing])
	assert.NoError(t, mock.ExpectationsWereMet())
}
