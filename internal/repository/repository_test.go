package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

var (
	_ webhook.EventQueue        = (*QueueRepository)(nil)
	_ webhook.Enqueuer          = (*QueueRepository)(nil)
	_ webhook.Registry          = (*WebhookRepository)(nil)
	_ webhook.DeliveryLogWriter = (*DeliveryLogRepository)(nil)
)

var webhookRowColumns = []string{
	"id", "name", "url", "secret", "events", "http_method", "custom_headers", "enabled",
	"failure_count", "last_triggered_at", "created_at", "updated_at",
}

var queueRowColumns = []string{
	"id", "webhook_id", "event_type", "event_id", "payload", "status", "attempts", "max_attempts",
	"scheduled_for", "claimed_at", "last_error", "created_at", "processed_at",
}

func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// WebhookRepository Tests

func TestWebhookRepository_GetByID(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "successful retrieval",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(webhookRowColumns).AddRow(
					id, "CRM sync", "https://crm.example.com/hooks", "whsec_1",
					[]byte(`["client.created","task.created"]`), "POST",
					[]byte(`{"X-Tenant":"acme"}`), true, 2, &now, now, now,
				)
				mock.ExpectQuery(q("FROM webhooks WHERE id = $1")).
					WithArgs(id).
					WillReturnRows(rows)
			},
		},
		{
			name: "webhook not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("FROM webhooks WHERE id = $1")).
					WithArgs(id).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrWebhookNotFound,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("FROM webhooks WHERE id = $1")).
					WithArgs(id).
					WillReturnError(errors.New("database connection error"))
			},
			wantErr: errors.New("get webhook by id"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewWebhookRepository(mock)
			got, err := repo.GetByID(context.Background(), id)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, domain.ErrWebhookNotFound) {
					assert.ErrorIs(t, err, domain.ErrWebhookNotFound)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, id, got.ID)
				assert.Equal(t, "whsec_1", got.Secret)
				assert.Equal(t, []string{"client.created", "task.created"}, got.Events)
				assert.Equal(t, map[string]string{"X-Tenant": "acme"}, got.CustomHeaders)
				assert.Equal(t, 2, got.FailureCount)
				require.NotNil(t, got.LastTriggeredAt)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWebhookRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	w := &domain.Webhook{
		Name:       "CRM sync",
		URL:        "https://crm.example.com/hooks",
		Secret:     "whsec_1",
		Events:     []string{"client.created"},
		HTTPMethod: "POST",
		Enabled:    true,
	}

	mock.ExpectQuery(q("INSERT INTO webhooks")).
		WithArgs(
			pgxmock.AnyArg(),
			"CRM sync",
			"https://crm.example.com/hooks",
			"whsec_1",
			[]byte(`["client.created"]`),
			"POST",
			[]byte(`{}`),
			true,
		).
		WillReturnRows(pgxmock.NewRows([]string{"failure_count", "created_at", "updated_at"}).AddRow(0, now, now))

	repo := NewWebhookRepository(mock)
	require.NoError(t, repo.Create(context.Background(), w))

	assert.NotEqual(t, uuid.Nil, w.ID)
	assert.Equal(t, now, w.CreatedAt)
	assert.NotNil(t, w.CustomHeaders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepository_Update(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		w := &domain.Webhook{ID: uuid.New(), Name: "x", URL: "https://x.example.com", HTTPMethod: "POST"}

		mock.ExpectQuery(q("UPDATE webhooks SET name = $2")).
			WithArgs(w.ID, "x", "https://x.example.com", []byte(`[]`), "POST", []byte(`{}`), false).
			WillReturnError(pgx.ErrNoRows)

		err = NewWebhookRepository(mock).Update(context.Background(), w)
		assert.ErrorIs(t, err, domain.ErrWebhookNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWebhookRepository_Delete(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "deleted", affected: 1},
		{name: "not found", affected: 0, wantErr: domain.ErrWebhookNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(q("DELETE FROM webhooks WHERE id = $1")).
				WithArgs(id).
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))

			err = NewWebhookRepository(mock).Delete(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWebhookRepository_ResetFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(q("SET failure_count = 0, updated_at = NOW()")).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewWebhookRepository(mock).ResetFailures(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepository_RecordSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(q("SET failure_count = 0, last_triggered_at = $2 WHERE id = $1")).
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewWebhookRepository(mock).RecordSuccess(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepository_RecordFailure(t *testing.T) {
	id := uuid.New()

	t.Run("returns incremented counter", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(q("SET failure_count = failure_count + 1 WHERE id = $1 RETURNING failure_count")).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"failure_count"}).AddRow(10))

		got, err := NewWebhookRepository(mock).RecordFailure(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 10, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("webhook deleted mid-cycle", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(q("SET failure_count = failure_count + 1")).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = NewWebhookRepository(mock).RecordFailure(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrWebhookNotFound)
	})
}

// QueueRepository Tests

func TestQueueRepository_EnqueueForSubscribers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	payload := []byte(`{"id":"c1"}`)
	mock.ExpectExec(q("WHERE w.enabled AND w.events @> jsonb_build_array($1::text)")).
		WithArgs("client.created", payload, 5).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))

	n, err := NewQueueRepository(mock).EnqueueForSubscribers(context.Background(), "client.created", payload, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_Claim(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	hookID := uuid.New()
	first, second, third := uuid.New(), uuid.New(), uuid.New()

	t.Run("claims and orders by scheduled_for then created_at", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(queueRowColumns).
			AddRow(second, hookID, "client.updated", "evt_2", []byte(`{}`), "processing", 1, 5,
				now.Add(-time.Minute), &now, nil, now.Add(-time.Hour), nil).
			AddRow(first, hookID, "client.created", "evt_1", []byte(`{"id":"c1"}`), "processing", 0, 5,
				now.Add(-time.Hour), &now, nil, now.Add(-time.Hour), nil).
			AddRow(third, hookID, "client.deleted", "evt_3", []byte(`{}`), "processing", 0, 5,
				now.Add(-time.Minute), &now, nil, now.Add(-2*time.Hour), nil)

		mock.ExpectQuery(q("SET status = 'processing', claimed_at = $1")+`(?s).*`+
			q("ORDER BY scheduled_for ASC, created_at ASC")+`(?s).*`+q("FOR UPDATE SKIP LOCKED")).
			WithArgs(now, 50).
			WillReturnRows(rows)

		events, err := NewQueueRepository(mock).Claim(context.Background(), now, 50)
		require.NoError(t, err)
		require.Len(t, events, 3)

		assert.Equal(t, first, events[0].ID)
		assert.Equal(t, "evt_1", events[0].EventID)
		assert.Equal(t, domain.EventProcessing, events[0].Status)
		assert.JSONEq(t, `{"id":"c1"}`, string(events[0].Payload))
		require.NotNil(t, events[0].ClaimedAt)
		assert.Equal(t, now, *events[0].ClaimedAt)
		assert.Equal(t, third, events[1].ID)
		assert.Equal(t, second, events[2].ID)
		assert.Equal(t, 1, events[2].Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("claim failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).
			WithArgs(now, 50).
			WillReturnError(errors.New("connection refused"))

		_, err = NewQueueRepository(mock).Claim(context.Background(), now, 50)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "claim webhook events")
	})
}

func TestQueueRepository_Transitions(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	claimedAt := at.Add(-time.Minute)

	tests := []struct {
		name    string
		pattern string
		args    []any
		call    func(r *QueueRepository) error
	}{
		{
			name:    "complete",
			pattern: "SET status = 'completed', processed_at = $3",
			args:    []any{id, claimedAt, at},
			call: func(r *QueueRepository) error {
				return r.Complete(context.Background(), id, claimedAt, at)
			},
		},
		{
			name:    "reschedule",
			pattern: "SET status = 'pending', attempts = $3, scheduled_for = $4, last_error = $5",
			args:    []any{id, claimedAt, 2, at.Add(5 * time.Minute), "HTTP 500 Internal Server Error"},
			call: func(r *QueueRepository) error {
				return r.Reschedule(context.Background(), id, claimedAt, 2, at.Add(5*time.Minute), "HTTP 500 Internal Server Error")
			},
		},
		{
			name:    "fail",
			pattern: "SET status = 'failed', attempts = $3, processed_at = $4, last_error = $5",
			args:    []any{id, claimedAt, 5, at, "timeout: context deadline exceeded"},
			call: func(r *QueueRepository) error {
				return r.Fail(context.Background(), id, claimedAt, 5, at, "timeout: context deadline exceeded")
			},
		},
		{
			name:    "release",
			pattern: "SET status = 'pending', claimed_at = NULL",
			args:    []any{id, claimedAt},
			call: func(r *QueueRepository) error {
				return r.Release(context.Background(), id, claimedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(q(tt.pattern) + `(?s).*` + q("AND status = 'processing' AND claimed_at = $2")).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))

			require.NoError(t, tt.call(NewQueueRepository(mock)))
			assert.NoError(t, mock.ExpectationsWereMet())
		})

		t.Run(tt.name+" on unclaimed or re-claimed row", func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(q(tt.pattern)).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", 0))

			assert.ErrorIs(t, tt.call(NewQueueRepository(mock)), domain.ErrQueuedEventNotClaimed)
		})
	}
}

func TestQueueRepository_ReleaseStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	before := time.Date(2026, 3, 14, 11, 55, 0, 0, time.UTC)
	mock.ExpectExec(q("WHERE status = 'processing' AND claimed_at < $1")).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := NewQueueRepository(mock).ReleaseStale(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ListByWebhook(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hookID := uuid.New()
	now := time.Now()
	lastErr := "HTTP 503 Service Unavailable"

	mock.ExpectQuery(q("FROM webhook_queue WHERE webhook_id = $1")).
		WithArgs(hookID, "failed", 500).
		WillReturnRows(pgxmock.NewRows(queueRowColumns).
			AddRow(uuid.New(), hookID, "client.created", "evt_9", []byte(`{}`), "failed", 5, 5,
				now, nil, &lastErr, now, &now))

	events, err := NewQueueRepository(mock).ListByWebhook(context.Background(), hookID, domain.EventFailed, 10000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailed, events[0].Status)
	require.NotNil(t, events[0].LastError)
	assert.Equal(t, lastErr, *events[0].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// DeliveryLogRepository Tests

func TestDeliveryLogRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	code := 502
	msg := "HTTP 502 Bad Gateway"
	entry := &domain.DeliveryLog{
		WebhookID:    uuid.New(),
		EventType:    "client.created",
		EventID:      "evt_1",
		StatusCode:   &code,
		ResponseBody: "upstream down",
		Attempt:      3,
		ErrorMessage: &msg,
		DurationMs:   120,
	}

	mock.ExpectQuery(q("INSERT INTO webhook_delivery_logs")).
		WithArgs(
			pgxmock.AnyArg(), entry.WebhookID, "client.created", "evt_1", &code, "upstream down",
			[]byte(`{}`), 3, &msg, int64(120), false,
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, NewDeliveryLogRepository(mock).Create(context.Background(), entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, now, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogRepository_ListByWebhook(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hookID := uuid.New()
	now := time.Now()
	code := 200
	body := "ok"

	mock.ExpectQuery(q("FROM webhook_delivery_logs WHERE webhook_id = $1")).
		WithArgs(hookID, 50, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "webhook_id", "event_type", "event_id", "status_code", "response_body", "response_headers",
			"attempt", "error_message", "duration_ms", "success", "created_at",
		}).AddRow(uuid.New(), hookID, "client.created", "evt_1", &code, &body,
			[]byte(`{"Content-Type":"text/plain"}`), 1, nil, int64(42), true, now))

	logs, err := NewDeliveryLogRepository(mock).ListByWebhook(context.Background(), hookID, 0, -5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "ok", logs[0].ResponseBody)
	assert.Equal(t, "text/plain", logs[0].ResponseHeaders["Content-Type"])
	assert.Nil(t, logs[0].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
