package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

const webhookColumns = `id, name, url, secret, events, http_method, custom_headers, enabled,
		failure_count, last_triggered_at, created_at, updated_at`

type WebhookRepository struct {
	pool PgxPool
}

func NewWebhookRepository(pool PgxPool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var (
		w           domain.Webhook
		eventsJSON  []byte
		headersJSON []byte
	)

	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.URL,
		&w.Secret,
		&eventsJSON,
		&w.HTTPMethod,
		&headersJSON,
		&w.Enabled,
		&w.FailureCount,
		&w.LastTriggeredAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if w.Events, err = unmarshalStrings(eventsJSON); err != nil {
		return nil, err
	}
	if w.CustomHeaders, err = unmarshalHeaders(headersJSON); err != nil {
		return nil, err
	}

	return &w, nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE id = $1
	`

	w, err := scanWebhook(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook by id: %w", err)
	}

	return w, nil
}

func (r *WebhookRepository) List(ctx context.Context, limit, offset int) ([]domain.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, clampLimit(limit, 50, 200), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []domain.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}

	return webhooks, nil
}

func (r *WebhookRepository) Create(ctx context.Context, w *domain.Webhook) error {
	query := `
		INSERT INTO webhooks (id, name, url, secret, events, http_method, custom_headers, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING failure_count, created_at, updated_at
	`

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Events == nil {
		w.Events = []string{}
	}
	if w.CustomHeaders == nil {
		w.CustomHeaders = map[string]string{}
	}

	events, err := marshalJSONB(w.Events)
	if err != nil {
		return err
	}
	headers, err := marshalJSONB(w.CustomHeaders)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, query,
		w.ID,
		w.Name,
		w.URL,
		w.Secret,
		events,
		w.HTTPMethod,
		headers,
		w.Enabled,
	).Scan(&w.FailureCount, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	return nil
}

// Update writes the operator-editable fields. The secret and failure counter
// are never touched here.
func (r *WebhookRepository) Update(ctx context.Context, w *domain.Webhook) error {
	query := `
		UPDATE webhooks
		SET name = $2, url = $3, events = $4, http_method = $5, custom_headers = $6, enabled = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING failure_count, last_triggered_at, created_at, updated_at
	`

	if w.Events == nil {
		w.Events = []string{}
	}
	if w.CustomHeaders == nil {
		w.CustomHeaders = map[string]string{}
	}

	events, err := marshalJSONB(w.Events)
	if err != nil {
		return err
	}
	headers, err := marshalJSONB(w.CustomHeaders)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, query,
		w.ID,
		w.Name,
		w.URL,
		events,
		w.HTTPMethod,
		headers,
		w.Enabled,
	).Scan(&w.FailureCount, &w.LastTriggeredAt, &w.CreatedAt, &w.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrWebhookNotFound
	}
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}

	return nil
}

func (r *WebhookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM webhooks
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}

	return nil
}

// ResetFailures closes the circuit for a webhook.
func (r *WebhookRepository) ResetFailures(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhooks
		SET failure_count = 0, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reset webhook failures: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}

	return nil
}

func (r *WebhookRepository) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE webhooks
		SET failure_count = 0, last_triggered_at = $2
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("record webhook success: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}

	return nil
}

// RecordFailure increments the consecutive-failure counter in one statement
// and returns the new value.
func (r *WebhookRepository) RecordFailure(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE webhooks
		SET failure_count = failure_count + 1
		WHERE id = $1
		RETURNING failure_count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrWebhookNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record webhook failure: %w", err)
	}

	return count, nil
}
