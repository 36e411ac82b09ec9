package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

const queueColumns = `id, webhook_id, event_type, event_id, payload, status, attempts, max_attempts,
		scheduled_for, claimed_at, last_error, created_at, processed_at`

// QueueRepository is the durable webhook event queue. Rows are never deleted.
// Every transition out of processing is conditional on the row still being
// processing under the same claim: claimed_at is the fencing token, so an
// owner whose claim was released and re-claimed cannot write over the new one.
type QueueRepository struct {
	pool PgxPool
}

func NewQueueRepository(pool PgxPool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

func scanQueuedEvent(row rowScanner) (*domain.QueuedEvent, error) {
	var (
		ev      domain.QueuedEvent
		payload []byte
		status  string
	)

	err := row.Scan(
		&ev.ID,
		&ev.WebhookID,
		&ev.EventType,
		&ev.EventID,
		&payload,
		&status,
		&ev.Attempts,
		&ev.MaxAttempts,
		&ev.ScheduledFor,
		&ev.ClaimedAt,
		&ev.LastError,
		&ev.CreatedAt,
		&ev.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.Payload = payload
	ev.Status = domain.EventStatus(status)
	return &ev, nil
}

// EnqueueForSubscribers inserts one pending row for every enabled webhook
// subscribed to eventType. Each row gets a fresh event identifier.
func (r *QueueRepository) EnqueueForSubscribers(ctx context.Context, eventType string, payload []byte, maxAttempts int) (int, error) {
	query := `
		INSERT INTO webhook_queue (webhook_id, event_type, event_id, payload, status, attempts, max_attempts, scheduled_for, created_at)
		SELECT w.id, $1::text, 'evt_' || replace(gen_random_uuid()::text, '-', ''), $2, 'pending', 0, $3, NOW(), NOW()
		FROM webhooks w
		WHERE w.enabled AND w.events @> jsonb_build_array($1::text)
	`

	result, err := r.pool.Exec(ctx, query, eventType, payload, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("enqueue webhook event: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// ReleaseStale returns rows left in processing by a dispatcher that died
// mid-cycle. Attempts are not changed.
func (r *QueueRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := `
		UPDATE webhook_queue
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < $1
	`

	result, err := r.pool.Exec(ctx, query, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("release stale webhook events: %w", err)
	}

	return result.RowsAffected(), nil
}

// Claim moves up to limit due pending rows to processing in one statement.
// Concurrent claimers skip each other's locked rows, so a row is returned to
// at most one caller. The returned ClaimedAt is the token later transitions
// must present.
func (r *QueueRepository) Claim(ctx context.Context, now time.Time, limit int) ([]domain.QueuedEvent, error) {
	// timestamptz keeps microseconds; the token must round-trip exactly.
	now = now.Truncate(time.Microsecond)

	query := `
		UPDATE webhook_queue
		SET status = 'processing', claimed_at = $1
		WHERE id IN (
			SELECT id
			FROM webhook_queue
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim webhook events: %w", err)
	}
	defer rows.Close()

	events := []domain.QueuedEvent{}
	for rows.Next() {
		ev, err := scanQueuedEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed webhook event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed webhook events: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	slices.SortStableFunc(events, func(a, b domain.QueuedEvent) int {
		if c := a.ScheduledFor.Compare(b.ScheduledFor); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return events, nil
}

func (r *QueueRepository) Complete(ctx context.Context, id uuid.UUID, claimedAt, processedAt time.Time) error {
	query := `
		UPDATE webhook_queue
		SET status = 'completed', processed_at = $3, claimed_at = NULL
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
	`

	return r.transition(ctx, "complete", query, id, claimedAt, processedAt)
}

func (r *QueueRepository) Reschedule(ctx context.Context, id uuid.UUID, claimedAt time.Time, attempts int, scheduledFor time.Time, lastError string) error {
	query := `
		UPDATE webhook_queue
		SET status = 'pending', attempts = $3, scheduled_for = $4, last_error = $5, claimed_at = NULL
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
	`

	return r.transition(ctx, "reschedule", query, id, claimedAt, attempts, scheduledFor, lastError)
}

func (r *QueueRepository) Fail(ctx context.Context, id uuid.UUID, claimedAt time.Time, attempts int, processedAt time.Time, lastError string) error {
	query := `
		UPDATE webhook_queue
		SET status = 'failed', attempts = $3, processed_at = $4, last_error = $5, claimed_at = NULL
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
	`

	return r.transition(ctx, "fail", query, id, claimedAt, attempts, processedAt, lastError)
}

// Release hands a claimed row back without counting an attempt.
func (r *QueueRepository) Release(ctx context.Context, id uuid.UUID, claimedAt time.Time) error {
	query := `
		UPDATE webhook_queue
		SET status = 'pending', claimed_at = NULL
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
	`

	return r.transition(ctx, "release", query, id, claimedAt)
}

func (r *QueueRepository) transition(ctx context.Context, verb, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s webhook event: %w", verb, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrQueuedEventNotClaimed
	}

	return nil
}

// ListByWebhook returns the newest queue rows for a webhook, optionally
// filtered by status.
func (r *QueueRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, status domain.EventStatus, limit int) ([]domain.QueuedEvent, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM webhook_queue
		WHERE webhook_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, webhookID, string(status), clampLimit(limit, 50, 500))
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	events := []domain.QueuedEvent{}
	for rows.Next() {
		ev, err := scanQueuedEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}

	return events, nil
}
