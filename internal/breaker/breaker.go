// Package breaker guards calls to unreliable downstream dependencies. Each
// named dependency gets its own breaker with independent tuning; one
// dependency's outage never opens another's circuit.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
)

// State represents the breaker circuit state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Probes in half_open run one at a time: the caller that wins the open ->
// half_open transition is the probe, everyone else is rejected until the
// probe resolves. Two consecutive probe successes close the circuit.
const probeSuccessesToClose = 2

// Breaker wraps calls to one named dependency.
type Breaker struct {
	name   string
	cfg    infra.BreakerConfig
	logger zerolog.Logger
	store  StateStore

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	nextAttemptAt time.Time
	probeInFlight bool

	now func() time.Time
}

// New constructs a breaker for a named dependency. Prior state is adopted
// from the store when present so a restart does not forget an open circuit.
func New(name string, cfg infra.BreakerConfig, logger zerolog.Logger, store StateStore) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		store:  store,
		state:  StateClosed,
		now:    time.Now,
	}
	if store != nil {
		if snap, ok, err := store.Load(context.Background(), name); err != nil {
			logger.Warn().Err(err).Str("dependency", name).Msg("breaker: state load failed")
		} else if ok {
			b.state = snap.State
			b.failureCount = snap.FailureCount
			b.successCount = snap.SuccessCount
			b.lastFailureAt = snap.LastFailureAt
			b.nextAttemptAt = snap.NextAttemptAt
		}
	}
	return b
}

// Execute runs op through the circuit with the per-dependency timeout. When
// the circuit is open and the reset timeout has not elapsed, it fails fast
// with domain.ErrBreakerOpen without invoking op.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	if err := op(opCtx); err != nil {
		b.recordFailure(err)
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) acquire() error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.nextAttemptAt) {
			b.mu.Unlock()
			return domain.ErrBreakerOpen
		}
		// Reset timeout elapsed: this caller becomes the probe.
		b.transition(StateHalfOpen)
		b.failureCount = 0
		b.successCount = 0
		b.probeInFlight = true
		snap := b.snapshotLocked()
		b.mu.Unlock()
		b.mirror(snap)
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			b.mu.Unlock()
			return domain.ErrBreakerOpen
		}
		b.probeInFlight = true
	}
	b.mu.Unlock()
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()

	var snap *Snapshot
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.successCount++
		if b.successCount >= probeSuccessesToClose {
			b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			s := b.snapshotLocked()
			snap = &s
		}
	}
	b.mu.Unlock()

	if snap != nil {
		b.mirror(*snap)
	}
}

func (b *Breaker) recordFailure(cause error) {
	b.mu.Lock()

	now := b.now()
	opened := false
	switch b.state {
	case StateHalfOpen:
		// A single probe failure reopens immediately.
		b.probeInFlight = false
		b.failureCount++
		b.lastFailureAt = now
		b.open(now, cause)
		opened = true
	case StateClosed:
		// Failures outside the monitoring period no longer count against
		// the threshold.
		if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) > b.cfg.MonitoringPeriod {
			b.failureCount = 0
		}
		b.failureCount++
		b.lastFailureAt = now
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open(now, cause)
			opened = true
		}
	}
	var snap Snapshot
	if opened {
		snap = b.snapshotLocked()
	}
	b.mu.Unlock()

	if opened {
		b.mirror(snap)
	}
}

// open must be called with b.mu held.
func (b *Breaker) open(now time.Time, cause error) {
	b.nextAttemptAt = now.Add(b.cfg.ResetTimeout)
	b.logger.Warn().
		Err(cause).
		Str("dependency", b.name).
		Int("failure_count", b.failureCount).
		Time("next_attempt_at", b.nextAttemptAt).
		Msg("breaker: opening circuit")
	b.transition(StateOpen)
}

// transition must be called with b.mu held. The store mirror happens in
// mirror, after the lock is released, so a slow store write never blocks
// concurrent callers.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.logger.Info().
		Str("dependency", b.name).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("breaker: state transition")
}

// mirror must be called without b.mu held so the store write can take as
// long as it needs without stalling other callers.
func (b *Breaker) mirror(snap Snapshot) {
	if b.store == nil {
		return
	}
	if err := b.store.Save(context.Background(), b.name, snap); err != nil {
		b.logger.Warn().Err(err).Str("dependency", b.name).Msg("breaker: state save failed")
	}
}

// Snapshot reports the current circuit state for health reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() Snapshot {
	return Snapshot{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		LastFailureAt: b.lastFailureAt,
		NextAttemptAt: b.nextAttemptAt,
	}
}
