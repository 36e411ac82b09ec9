package domain

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Event types a webhook can subscribe to.
const (
	EventClientCreated       = "client.created"
	EventClientUpdated       = "client.updated"
	EventClientDeleted       = "client.deleted"
	EventMeetingCreated      = "meeting.created"
	EventMeetingSummarized   = "meeting.summarized"
	EventTaskCreated         = "task.created"
	EventTaskCompleted       = "task.completed"
	EventSubscriptionUpdated = "subscription.updated"

	// EventWebhookTest is only sent by operator test deliveries.
	EventWebhookTest = "webhook.test"
)

var knownEventTypes = []string{
	EventClientCreated,
	EventClientUpdated,
	EventClientDeleted,
	EventMeetingCreated,
	EventMeetingSummarized,
	EventTaskCreated,
	EventTaskCompleted,
	EventSubscriptionUpdated,
}

// KnownEventTypes returns a copy of the subscribable event types.
func KnownEventTypes() []string {
	return slices.Clone(knownEventTypes)
}

func IsKnownEventType(eventType string) bool {
	return slices.Contains(knownEventTypes, eventType)
}

// Webhook is a configured delivery destination.
type Webhook struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Secret          string            `json:"-"`
	Events          []string          `json:"events"`
	HTTPMethod      string            `json:"http_method"`
	CustomHeaders   map[string]string `json:"custom_headers"`
	Enabled         bool              `json:"enabled"`
	FailureCount    int               `json:"failure_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (w *Webhook) Subscribes(eventType string) bool {
	return slices.Contains(w.Events, eventType)
}

type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

func (s EventStatus) IsTerminal() bool {
	return s == EventCompleted || s == EventFailed
}

// QueuedEvent is one pending delivery of one business event to one webhook.
// Payload is the snapshot of the event data taken at enqueue time.
type QueuedEvent struct {
	ID           uuid.UUID       `json:"id"`
	WebhookID    uuid.UUID       `json:"webhook_id"`
	EventType    string          `json:"event_type"`
	EventID      string          `json:"event_id"`
	Payload      json.RawMessage `json:"payload"`
	Status       EventStatus     `json:"status"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	ClaimedAt    *time.Time      `json:"claimed_at,omitempty"`
	LastError    *string         `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// DeliveryLog records the outcome of a single delivery attempt.
type DeliveryLog struct {
	ID              uuid.UUID         `json:"id"`
	WebhookID       uuid.UUID         `json:"webhook_id"`
	EventType       string            `json:"event_type"`
	EventID         string            `json:"event_id"`
	StatusCode      *int              `json:"status_code"`
	ResponseBody    string            `json:"response_body"`
	ResponseHeaders map[string]string `json:"response_headers"`
	Attempt         int               `json:"attempt"`
	ErrorMessage    *string           `json:"error_message"`
	DurationMs      int64             `json:"duration_ms"`
	Success         bool              `json:"success"`
	CreatedAt       time.Time         `json:"created_at"`
}
