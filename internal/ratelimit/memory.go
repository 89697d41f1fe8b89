package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the single-process default. Expired windows reset lazily on
// next access; Janitor bounds memory by dropping stale keys periodically.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		s.entries[key] = e
	}

	if e.count >= limit {
		return Decision{
			Remaining:  0,
			RetryAfter: e.resetAt.Sub(now),
			ResetAt:    e.resetAt,
		}, nil
	}

	e.count++
	return Decision{
		Allowed:   true,
		Remaining: limit - e.count,
		ResetAt:   e.resetAt,
	}, nil
}

// Janitor drops expired windows until ctx is cancelled.
func (s *MemoryStore) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(s.now())
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, key)
		}
	}
}
