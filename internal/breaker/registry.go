package breaker

import (
	"sync"

	"github.com/rs/zerolog"

	"mockforge/internal/infra"
)

// DepGenerationService names the outbound render dependency. The commerce
// platform only calls inbound via webhooks, so it carries no breaker; a
// future charge-creation path would register its own name here.
const DepGenerationService = "generation-service"

// Registry hands out one breaker per named dependency, creating each on
// first use with its own configuration.
type Registry struct {
	logger zerolog.Logger
	store  StateStore

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(logger zerolog.Logger, store StateStore) *Registry {
	return &Registry{
		logger:   logger,
		store:    store,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, constructing it with cfg when missing.
// The configuration of an existing breaker is not changed.
func (r *Registry) Get(name string, cfg infra.BreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg, r.logger, r.store)
	r.breakers[name] = b
	return b
}

// Snapshots reports every registered breaker's state for health reporting.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snaps = append(snaps, b.Snapshot())
	}
	return snaps
}
