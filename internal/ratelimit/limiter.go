// Package ratelimit implements a fixed-window request counter keyed by
// client identity. Counters live behind a Store so a multi-instance
// deployment can move them into a shared cache without touching call sites.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call. RetryAfter is non-zero only
// when the request was rejected and tells the client when the window resets.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Store consumes one request from a key's current window, or reports the
// wait until reset without consuming once the limit is reached.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Limiter applies one limit/window pair to every key it sees.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow reports whether the client identified by key may proceed.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.store.Take(ctx, key, l.limit, l.window)
}
