package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers which event IDs were handled successfully.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps event IDs in process memory for ttl. It only
// deduplicates redeliveries to the same replica.
type MemoryIdempotencyStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryIdempotencyStore creates a store whose entries expire after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Contains reports whether eventID was added less than ttl ago.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[eventID]
	return ok && s.now().Sub(at) < s.ttl, nil
}

// Add records eventID. Expired entries are swept at most once per ttl.
func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.seen[eventID] = now
	if now.After(s.nextSweep) {
		for id, at := range s.seen {
			if now.Sub(at) >= s.ttl {
				delete(s.seen, id)
			}
		}
		s.nextSweep = now.Add(s.ttl)
	}
	return nil
}

// Len is the number of remembered IDs, expired ones included until swept.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// IdempotentHandler skips events whose ID the store has seen and records IDs
// after inner succeeds. A failing store never blocks processing: the event is
// handled and at-least-once delivery is kept.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}
		log := logger.With(slog.String("event_id", event.EventID), slog.String("event_type", event.EventType))

		seen, err := store.Contains(ctx, event.EventID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "idempotency lookup failed, handling anyway", slog.String("error", err.Error()))
		case seen:
			topic, group := labelsFromContext(ctx)
			countConsumed(topic, group, outcomeDuplicate)
			log.DebugContext(ctx, "duplicate event skipped")
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "could not record handled event", slog.String("error", err.Error()))
		}
		return nil
	}
}
