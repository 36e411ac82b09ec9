package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// Envelope is the JSON body delivered to every webhook.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Test      bool            `json:"test"`
	Data      json.RawMessage `json:"data"`
}

// EnvelopeFor wraps a queued event's payload snapshot. The timestamp is the
// enqueue time so retries of the same event carry an identical body.
func EnvelopeFor(ev domain.QueuedEvent) Envelope {
	return Envelope{
		EventID:   ev.EventID,
		EventType: ev.EventType,
		Timestamp: ev.CreatedAt.UTC(),
		Data:      ev.Payload,
	}
}

// Marshal produces the canonical body; the signature is computed over exactly
// these bytes.
func (e Envelope) Marshal() ([]byte, error) {
	if len(e.Data) == 0 {
		e.Data = json.RawMessage(`{}`)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return body, nil
}
