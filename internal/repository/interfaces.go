package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// WebhookRepositoryInterface defines operations for webhook destination data access
type WebhookRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	List(ctx context.Context, limit, offset int) ([]domain.Webhook, error)
	Create(ctx context.Context, w *domain.Webhook) error
	Update(ctx context.Context, w *domain.Webhook) error
	Delete(ctx context.Context, id uuid.UUID) error
	ResetFailures(ctx context.Context, id uuid.UUID) error
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID) (int, error)
}

// QueueRepositoryInterface defines operations for the webhook event queue
type QueueRepositoryInterface interface {
	EnqueueForSubscribers(ctx context.Context, eventType string, payload []byte, maxAttempts int) (int, error)
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	Claim(ctx context.Context, now time.Time, limit int) ([]domain.QueuedEvent, error)
	Complete(ctx context.Context, id uuid.UUID, claimedAt, processedAt time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, claimedAt time.Time, attempts int, scheduledFor time.Time, lastError string) error
	Fail(ctx context.Context, id uuid.UUID, claimedAt time.Time, attempts int, processedAt time.Time, lastError string) error
	Release(ctx context.Context, id uuid.UUID, claimedAt time.Time) error
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, status domain.EventStatus, limit int) ([]domain.QueuedEvent, error)
}

// DeliveryLogRepositoryInterface defines operations for delivery audit logging
type DeliveryLogRepositoryInterface interface {
	Create(ctx context.Context, entry *domain.DeliveryLog) error
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]domain.DeliveryLog, error)
}

var (
	_ WebhookRepositoryInterface     = (*WebhookRepository)(nil)
	_ QueueRepositoryInterface       = (*QueueRepository)(nil)
	_ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
)
