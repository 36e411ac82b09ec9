package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// DefaultBatchSize is the maximum number of events claimed per cycle.
const DefaultBatchSize = 50

// EventQueue is the durable queue the dispatcher claims from. Every
// transition after Claim must present the claimedAt returned by Claim and
// fails with domain.ErrQueuedEventNotClaimed once the claim has been lost.
type EventQueue interface {
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	Claim(ctx context.Context, now time.Time, limit int) ([]domain.QueuedEvent, error)
	Complete(ctx context.Context, id uuid.UUID, claimedAt, processedAt time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, claimedAt time.Time, attempts int, scheduledFor time.Time, lastError string) error
	Fail(ctx context.Context, id uuid.UUID, claimedAt time.Time, attempts int, processedAt time.Time, lastError string) error
	Release(ctx context.Context, id uuid.UUID, claimedAt time.Time) error
}

// Registry is the webhook store. RecordFailure increments the counter in a
// single statement and returns the new value.
type Registry interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID) (int, error)
}

type DeliveryLogWriter interface {
	Create(ctx context.Context, entry *domain.DeliveryLog) error
}

// Recorder receives dispatcher metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveClaimed(n int)
	ObserveDelivery(state OutcomeState, duration time.Duration)
	IncCircuitOpen()
}

type nopRecorder struct{}

func (nopRecorder) ObserveClaimed(int)                          {}
func (nopRecorder) ObserveDelivery(OutcomeState, time.Duration) {}
func (nopRecorder) IncCircuitOpen()                             {}

// OutcomeState is where a claimed event ended up after this cycle.
type OutcomeState string

const (
	OutcomeCompleted   OutcomeState = "completed"
	OutcomeRescheduled OutcomeState = "rescheduled"
	OutcomeFailed      OutcomeState = "failed"
	OutcomeReleased    OutcomeState = "released"
)

// Outcome is the per-event result record of a cycle. Err aggregates
// bookkeeping errors (store writes) and is never the delivery failure itself.
type Outcome struct {
	QueueID      uuid.UUID
	EventID      string
	WebhookID    uuid.UUID
	State        OutcomeState
	Attempted    bool
	Attempt      int
	StatusCode   int
	Kind         ErrorKind
	Reason       string
	ScheduledFor time.Time
	Err          error
}

type CycleResult struct {
	Claimed     int
	Completed   int
	Rescheduled int
	Failed      int
	Released    int
	Stale       int64
	Outcomes    []Outcome
}

type DispatcherConfig struct {
	BatchSize       int
	MaxConcurrency  int
	FailureCeiling  int
	ProcessingLease time.Duration
}

type Dispatcher struct {
	queue     EventQueue
	registry  Registry
	logs      DeliveryLogWriter
	deliverer *Deliverer
	breaker   CircuitBreaker
	cfg       DispatcherConfig
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.metrics = r
		}
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(
	queue EventQueue,
	registry Registry,
	logs DeliveryLogWriter,
	deliverer *Deliverer,
	cfg DispatcherConfig,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = cfg.BatchSize
	}

	d := &Dispatcher{
		queue:     queue,
		registry:  registry,
		logs:      logs,
		deliverer: deliverer,
		breaker:   NewCircuitBreaker(cfg.FailureCeiling),
		cfg:       cfg,
		metrics:   nopRecorder{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunCycle claims due events and delivers them concurrently. Only a failure
// to claim is returned as an error; per-event problems are reported in the
// outcomes. The dispatcher holds no state between cycles, so overlapping
// calls are safe.
func (d *Dispatcher) RunCycle(ctx context.Context) (*CycleResult, error) {
	now := d.now()
	result := &CycleResult{}

	if d.cfg.ProcessingLease > 0 {
		stale, err := d.queue.ReleaseStale(ctx, now.Add(-d.cfg.ProcessingLease))
		if err != nil {
			d.logger.Warn("failed to release stale claims", "error", err)
		} else if stale > 0 {
			d.logger.Warn("released stale claims", "count", stale)
			result.Stale = stale
		}
	}

	events, err := d.queue.Claim(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim events: %w", err)
	}

	result.Claimed = len(events)
	if len(events) == 0 {
		return result, nil
	}

	d.metrics.ObserveClaimed(len(events))
	d.logger.Debug("claimed webhook events", "count", len(events))

	outcomes := make([]Outcome, len(events))

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrency)
	for i := range events {
		g.Go(func() error {
			outcomes[i] = d.process(ctx, events[i])
			return nil
		})
	}
	_ = g.Wait()

	result.Outcomes = outcomes
	for _, o := range outcomes {
		switch o.State {
		case OutcomeCompleted:
			result.Completed++
		case OutcomeRescheduled:
			result.Rescheduled++
		case OutcomeFailed:
			result.Failed++
		case OutcomeReleased:
			result.Released++
		}
	}

	d.logger.Info("dispatch cycle completed",
		"claimed", result.Claimed,
		"completed", result.Completed,
		"rescheduled", result.Rescheduled,
		"failed", result.Failed,
		"released", result.Released,
	)

	return result, nil
}

func (d *Dispatcher) process(ctx context.Context, ev domain.QueuedEvent) (out Outcome) {
	out = Outcome{
		QueueID:   ev.ID,
		EventID:   ev.EventID,
		WebhookID: ev.WebhookID,
		Attempt:   ev.Attempts + 1,
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while dispatching webhook event",
				"event_id", ev.EventID,
				"panic", r,
			)
			out.Err = multierr.Append(out.Err, fmt.Errorf("panic: %v", r))
			out.State = OutcomeReleased
			if err := d.queue.Release(ctx, ev.ID, claimToken(ev)); err != nil {
				out.Err = multierr.Append(out.Err, fmt.Errorf("release after panic: %w", err))
			}
		}
	}()

	hook, err := d.registry.GetByID(ctx, ev.WebhookID)
	switch {
	case errors.Is(err, domain.ErrWebhookNotFound):
		return d.failUnattempted(ctx, ev, out, "webhook not found")
	case err != nil:
		out.State = OutcomeReleased
		out.Reason = "webhook lookup failed"
		out.Err = multierr.Append(fmt.Errorf("get webhook: %w", err), d.queue.Release(ctx, ev.ID, claimToken(ev)))
		d.logger.Warn("webhook lookup failed, event released",
			"event_id", ev.EventID,
			"webhook_id", ev.WebhookID,
			"error", err,
		)
		return out
	}

	if !hook.Enabled {
		return d.failUnattempted(ctx, ev, out, "webhook disabled")
	}

	if d.breaker.Open(hook.FailureCount) {
		d.metrics.IncCircuitOpen()
		return d.failUnattempted(ctx, ev, out,
			fmt.Sprintf("circuit open: %d consecutive failures", hook.FailureCount))
	}

	body, err := EnvelopeFor(ev).Marshal()
	if err != nil {
		return d.failUnattempted(ctx, ev, out, err.Error())
	}

	if d.leaseTooShort(ev) {
		out.State = OutcomeReleased
		out.Reason = "claim lease too short to deliver"
		out.Err = d.queue.Release(ctx, ev.ID, claimToken(ev))
		d.logger.Warn("claim lease nearly expired, event released undelivered",
			"event_id", ev.EventID,
			"webhook_id", ev.WebhookID,
		)
		d.logBookkeeping(ev, &out)
		return out
	}

	res := d.deliverer.Deliver(ctx, DeliveryRequest{
		URL:           hook.URL,
		Method:        hook.HTTPMethod,
		Body:          body,
		Secret:        hook.Secret,
		EventType:     ev.EventType,
		DeliveryID:    ev.EventID,
		CustomHeaders: hook.CustomHeaders,
	})

	out.Attempted = true
	out.StatusCode = res.StatusCode
	out.Kind = res.Kind

	if res.Success() {
		d.onSuccess(ctx, ev, hook, res, &out)
	} else {
		d.onFailure(ctx, ev, hook, res, &out)
	}

	d.metrics.ObserveDelivery(out.State, res.Duration)
	return out
}

func (d *Dispatcher) onSuccess(ctx context.Context, ev domain.QueuedEvent, hook *domain.Webhook, res *DeliveryResult, out *Outcome) {
	at := d.now()
	out.State = OutcomeCompleted

	if err := d.registry.RecordSuccess(ctx, hook.ID, at); err != nil {
		out.Err = multierr.Append(out.Err, fmt.Errorf("record success: %w", err))
	}
	if err := d.queue.Complete(ctx, ev.ID, claimToken(ev), at); err != nil {
		out.Err = multierr.Append(out.Err, fmt.Errorf("complete event: %w", err))
	}
	if err := d.logs.Create(ctx, d.logEntry(ev, out.Attempt, res)); err != nil {
		out.Err = multierr.Append(out.Err, fmt.Errorf("write delivery log: %w", err))
	}

	d.logger.Info("webhook delivered",
		"event_id", ev.EventID,
		"webhook_id", hook.ID,
		"attempt", out.Attempt,
		"status_code", res.StatusCode,
		"duration_ms", res.Duration.Milliseconds(),
	)
	d.logBookkeeping(ev, out)
}

func (d *Dispatcher) onFailure(ctx context.Context, ev domain.QueuedEvent, hook *domain.Webhook, res *DeliveryResult, out *Outcome) {
	failedAt := d.now()
	reason := res.ErrorMessage()
	out.Reason = reason

	failures, err := d.registry.RecordFailure(ctx, hook.ID)
	if err != nil {
		out.Err = multierr.Append(out.Err, fmt.Errorf("record failure: %w", err))
		failures = hook.FailureCount + 1
	}

	if err := d.logs.Create(ctx, d.logEntry(ev, out.Attempt, res)); err != nil {
		out.Err = multierr.Append(out.Err, fmt.Errorf("write delivery log: %w", err))
	}

	decision := DecideRetry(ev.Attempts, ev.MaxAttempts, failedAt)
	circuitOpened := d.breaker.Open(failures)

	if decision.Terminal || circuitOpened {
		out.State = OutcomeFailed
		if circuitOpened && !decision.Terminal {
			out.Reason = fmt.Sprintf("%s; circuit open after %d consecutive failures", reason, failures)
		}
		if err := d.queue.Fail(ctx, ev.ID, claimToken(ev), decision.Attempts, failedAt, out.Reason); err != nil {
			out.Err = multierr.Append(out.Err, fmt.Errorf("fail event: %w", err))
		}
		d.logger.Warn("webhook delivery failed permanently",
			"event_id", ev.EventID,
			"webhook_id", hook.ID,
			"attempt", decision.Attempts,
			"failure_count", failures,
			"status_code", res.StatusCode,
			"error", reason,
		)
	} else {
		out.State = OutcomeRescheduled
		out.ScheduledFor = decision.ScheduledFor
		if err := d.queue.Reschedule(ctx, ev.ID, claimToken(ev), decision.Attempts, decision.ScheduledFor, reason); err != nil {
			out.Err = multierr.Append(out.Err, fmt.Errorf("reschedule event: %w", err))
		}
		d.logger.Info("webhook delivery scheduled for retry",
			"event_id", ev.EventID,
			"webhook_id", hook.ID,
			"attempt", decision.Attempts,
			"next_retry", decision.ScheduledFor,
			"status_code", res.StatusCode,
			"error", reason,
		)
	}

	d.logBookkeeping(ev, out)
}

// failUnattempted terminally fails an event that never reached the network.
// No delivery log is written since no attempt occurred.
func (d *Dispatcher) failUnattempted(ctx context.Context, ev domain.QueuedEvent, out Outcome, reason string) Outcome {
	out.State = OutcomeFailed
	out.Reason = reason

	if err := d.queue.Fail(ctx, ev.ID, claimToken(ev), ev.Attempts, d.now(), reason); err != nil {
		out.Err = multierr.Append(out.Err, fmt.Errorf("fail event: %w", err))
	}

	d.logger.Warn("webhook event failed without delivery",
		"event_id", ev.EventID,
		"webhook_id", ev.WebhookID,
		"reason", reason,
	)
	d.metrics.ObserveDelivery(out.State, 0)
	d.logBookkeeping(ev, &out)
	return out
}

// leaseTooShort reports whether a delivery started now could still be in
// flight when the claim becomes stale and another cycle may re-claim it.
func (d *Dispatcher) leaseTooShort(ev domain.QueuedEvent) bool {
	if d.cfg.ProcessingLease <= 0 || ev.ClaimedAt == nil {
		return false
	}
	held := d.now().Sub(*ev.ClaimedAt)
	return held+d.deliverer.Timeout() >= d.cfg.ProcessingLease
}

func claimToken(ev domain.QueuedEvent) time.Time {
	if ev.ClaimedAt == nil {
		return time.Time{}
	}
	return *ev.ClaimedAt
}

func (d *Dispatcher) logEntry(ev domain.QueuedEvent, attempt int, res *DeliveryResult) *domain.DeliveryLog {
	entry := &domain.DeliveryLog{
		WebhookID:       ev.WebhookID,
		EventType:       ev.EventType,
		EventID:         ev.EventID,
		ResponseBody:    res.Body,
		ResponseHeaders: res.Headers,
		Attempt:         attempt,
		DurationMs:      res.Duration.Milliseconds(),
		Success:         res.Success(),
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		entry.StatusCode = &code
	}
	if msg := res.ErrorMessage(); msg != "" {
		entry.ErrorMessage = &msg
	}
	if entry.ResponseHeaders == nil {
		entry.ResponseHeaders = map[string]string{}
	}
	return entry
}

func (d *Dispatcher) logBookkeeping(ev domain.QueuedEvent, out *Outcome) {
	for _, err := range multierr.Errors(out.Err) {
		d.logger.Error("webhook bookkeeping error",
			"event_id", ev.EventID,
			"webhook_id", ev.WebhookID,
			"state", out.State,
			"error", err,
		)
	}
}
