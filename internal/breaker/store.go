package breaker

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the externally visible circuit state for one dependency.
type Snapshot struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	LastFailureAt time.Time `json:"last_failure_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// StateStore persists breaker state so a multi-instance deployment can share
// circuit knowledge through an external cache. Transition serialization stays
// per-process: with several instances each probes at most once concurrently,
// which is the bounded-probe variant this service deliberately runs.
type StateStore interface {
	Load(ctx context.Context, name string) (Snapshot, bool, error)
	Save(ctx context.Context, name string, snap Snapshot) error
}

// MemoryStore is the single-process default.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (s *MemoryStore) Load(_ context.Context, name string) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[name]
	return snap, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, name string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[name] = snap
	return nil
}
