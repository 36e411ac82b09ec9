package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// Enqueuer inserts one pending row per enabled webhook subscribed to
// eventType and reports how many rows were written. Each row gets its own
// event identifier.
type Enqueuer interface {
	EnqueueForSubscribers(ctx context.Context, eventType string, payload []byte, maxAttempts int) (int, error)
}

// Producer turns business mutations into queued webhook events.
type Producer struct {
	queue       Enqueuer
	maxAttempts int
	logger      *slog.Logger
}

func NewProducer(queue Enqueuer, maxAttempts int, logger *slog.Logger) *Producer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Producer{queue: queue, maxAttempts: maxAttempts, logger: logger}
}

// Emit snapshots data and enqueues it for every subscriber. Zero subscribers
// is not an error.
func (p *Producer) Emit(ctx context.Context, eventType string, data any) (int, error) {
	if !domain.IsKnownEventType(eventType) {
		return 0, domain.ErrUnknownEventType.WithMessage(fmt.Sprintf("Unknown event type %q", eventType))
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}
	if string(payload) == "null" {
		payload = []byte(`{}`)
	}

	n, err := p.queue.EnqueueForSubscribers(ctx, eventType, payload, p.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", eventType, err)
	}

	p.logger.Debug("webhook event enqueued", "event_type", eventType, "subscribers", n)
	return n, nil
}
