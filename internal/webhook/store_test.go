package webhook

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// memStore is an in-memory EventQueue, Registry, DeliveryLogWriter and
// Enqueuer. Claim is atomic under mu, like the conditional UPDATE in Postgres.
type memStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*domain.QueuedEvent
	hooks    map[uuid.UUID]*domain.Webhook
	logs     []domain.DeliveryLog
	claimErr error
	getErr   map[uuid.UUID]error
	getPanic map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[uuid.UUID]*domain.QueuedEvent),
		hooks:    make(map[uuid.UUID]*domain.Webhook),
		getErr:   make(map[uuid.UUID]error),
		getPanic: make(map[uuid.UUID]bool),
	}
}

func (s *memStore) addHook(h domain.Webhook) *domain.Webhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.HTTPMethod == "" {
		h.HTTPMethod = "POST"
	}
	s.hooks[h.ID] = &h
	return &h
}

func (s *memStore) addEvent(ev domain.QueuedEvent) *domain.QueuedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.EventID == "" {
		ev.EventID = "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if ev.Status == "" {
		ev.Status = domain.EventPending
	}
	if ev.MaxAttempts == 0 {
		ev.MaxAttempts = DefaultMaxAttempts
	}
	if ev.EventType == "" {
		ev.EventType = domain.EventClientCreated
	}
	s.events[ev.ID] = &ev
	return &ev
}

func (s *memStore) event(id uuid.UUID) domain.QueuedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[id]
}

// snapshot deep-copies every queue row so later mutations cannot alias it.
func (s *memStore) snapshot() map[uuid.UUID]domain.QueuedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]domain.QueuedEvent, len(s.events))
	for id, ev := range s.events {
		cp := *ev
		if ev.ClaimedAt != nil {
			t := *ev.ClaimedAt
			cp.ClaimedAt = &t
		}
		if ev.ProcessedAt != nil {
			t := *ev.ProcessedAt
			cp.ProcessedAt = &t
		}
		if ev.LastError != nil {
			e := *ev.LastError
			cp.LastError = &e
		}
		out[id] = cp
	}
	return out
}

func (s *memStore) hook(id uuid.UUID) domain.Webhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.hooks[id]
}

func (s *memStore) deliveryLogs() []domain.DeliveryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DeliveryLog(nil), s.logs...)
}

func (s *memStore) ReleaseStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ev := range s.events {
		if ev.Status == domain.EventProcessing && ev.ClaimedAt != nil && ev.ClaimedAt.Before(claimedBefore) {
			ev.Status = domain.EventPending
			ev.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *memStore) Claim(_ context.Context, now time.Time, limit int) ([]domain.QueuedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	var due []*domain.QueuedEvent
	for _, ev := range s.events {
		if ev.Status == domain.EventPending && !ev.ScheduledFor.After(now) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[j].ScheduledFor)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.QueuedEvent, 0, len(due))
	for _, ev := range due {
		claimedAt := now
		ev.Status = domain.EventProcessing
		ev.ClaimedAt = &claimedAt
		out = append(out, *ev)
	}
	return out, nil
}

func (s *memStore) transition(id uuid.UUID, claimedAt time.Time, fn func(ev *domain.QueuedEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || ev.Status != domain.EventProcessing || ev.ClaimedAt == nil || !ev.ClaimedAt.Equal(claimedAt) {
		return domain.ErrQueuedEventNotClaimed
	}
	fn(ev)
	return nil
}

func (s *memStore) Complete(_ context.Context, id uuid.UUID, claimedAt, processedAt time.Time) error {
	return s.transition(id, claimedAt, func(ev *domain.QueuedEvent) {
		ev.Status = domain.EventCompleted
		ev.ProcessedAt = &processedAt
		ev.ClaimedAt = nil
	})
}

func (s *memStore) Reschedule(_ context.Context, id uuid.UUID, claimedAt time.Time, attempts int, scheduledFor time.Time, lastError string) error {
	return s.transition(id, claimedAt, func(ev *domain.QueuedEvent) {
		ev.Status = domain.EventPending
		ev.Attempts = attempts
		ev.ScheduledFor = scheduledFor
		ev.LastError = &lastError
		ev.ClaimedAt = nil
	})
}

func (s *memStore) Fail(_ context.Context, id uuid.UUID, claimedAt time.Time, attempts int, processedAt time.Time, lastError string) error {
	return s.transition(id, claimedAt, func(ev *domain.QueuedEvent) {
		ev.Status = domain.EventFailed
		ev.Attempts = attempts
		ev.ProcessedAt = &processedAt
		ev.LastError = &lastError
		ev.ClaimedAt = nil
	})
}

func (s *memStore) Release(_ context.Context, id uuid.UUID, claimedAt time.Time) error {
	return s.transition(id, claimedAt, func(ev *domain.QueuedEvent) {
		ev.Status = domain.EventPending
		ev.ClaimedAt = nil
	})
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Webhook, error) {
	s.mu.Lock()
	panicking := s.getPanic[id]
	err := s.getErr[id]
	h, ok := s.hooks[id]
	var cp domain.Webhook
	if ok {
		cp = *h
	}
	s.mu.Unlock()

	if panicking {
		panic("registry exploded")
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return &cp, nil
}

func (s *memStore) RecordSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	h.FailureCount = 0
	h.LastTriggeredAt = &at
	return nil
}

func (s *memStore) RecordFailure(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hooks[id]
	if !ok {
		return 0, domain.ErrWebhookNotFound
	}
	h.FailureCount++
	return h.FailureCount, nil
}

func (s *memStore) Create(_ context.Context, entry *domain.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *memStore) EnqueueForSubscribers(_ context.Context, eventType string, payload []byte, maxAttempts int) (int, error) {
	s.mu.Lock()
	hooks := make([]*domain.Webhook, 0, len(s.hooks))
	for _, h := range s.hooks {
		if h.Enabled && h.Subscribes(eventType) {
			hooks = append(hooks, h)
		}
	}
	s.mu.Unlock()

	for _, h := range hooks {
		s.addEvent(domain.QueuedEvent{
			WebhookID:    h.ID,
			EventType:    eventType,
			Payload:      append([]byte(nil), payload...),
			MaxAttempts:  maxAttempts,
			ScheduledFor: time.Now(),
			CreatedAt:    time.Now(),
		})
	}
	return len(hooks), nil
}

var errStoreDown = errors.New("connection reset by peer")
