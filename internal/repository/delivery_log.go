package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

type DeliveryLogRepository struct {
	pool PgxPool
}

func NewDeliveryLogRepository(pool PgxPool) *DeliveryLogRepository {
	return &DeliveryLogRepository{pool: pool}
}

func (r *DeliveryLogRepository) Create(ctx context.Context, entry *domain.DeliveryLog) error {
	query := `
		INSERT INTO webhook_delivery_logs (
			id, webhook_id, event_type, event_id, status_code, response_body, response_headers,
			attempt, error_message, duration_ms, success, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING created_at
	`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ResponseHeaders == nil {
		entry.ResponseHeaders = map[string]string{}
	}

	headers, err := marshalJSONB(entry.ResponseHeaders)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.WebhookID,
		entry.EventType,
		entry.EventID,
		entry.StatusCode,
		entry.ResponseBody,
		headers,
		entry.Attempt,
		entry.ErrorMessage,
		entry.DurationMs,
		entry.Success,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create delivery log: %w", err)
	}

	return nil
}

func (r *DeliveryLogRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]domain.DeliveryLog, error) {
	query := `
		SELECT id, webhook_id, event_type, event_id, status_code, response_body, response_headers,
		       attempt, error_message, duration_ms, success, created_at
		FROM webhook_delivery_logs
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, webhookID, clampLimit(limit, 50, 500), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.DeliveryLog{}
	for rows.Next() {
		var (
			l           domain.DeliveryLog
			body        *string
			headersJSON []byte
		)

		if err := rows.Scan(
			&l.ID,
			&l.WebhookID,
			&l.EventType,
			&l.EventID,
			&l.StatusCode,
			&body,
			&headersJSON,
			&l.Attempt,
			&l.ErrorMessage,
			&l.DurationMs,
			&l.Success,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}

		if body != nil {
			l.ResponseBody = *body
		}
		if l.ResponseHeaders, err = unmarshalHeaders(headersJSON); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery logs: %w", err)
	}

	return logs, nil
}
