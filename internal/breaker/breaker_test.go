package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
)

var errDown = errors.New("dependency down")

func testConfig() infra.BreakerConfig {
	return infra.BreakerConfig{
		FailureThreshold: 3,
		Timeout:          time.Second,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: 2 * time.Minute,
	}
}

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b := New("generation-service", testConfig(), zerolog.Nop(), NewMemoryStore())
	b.now = func() time.Time { return now }
	return b, &now
}

func failNTimes(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Execute(context.Background(), func(context.Context) error { return errDown }); !errors.Is(err, errDown) {
			t.Fatalf("failure %d: got %v, want %v", i+1, err, errDown)
		}
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	failNTimes(t, b, 3)
	if got := b.Snapshot().State; got != StateOpen {
		t.Fatalf("state after threshold failures = %s, want %s", got, StateOpen)
	}

	// Open circuit rejects without invoking the operation.
	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, domain.ErrBreakerOpen) {
		t.Fatalf("Execute on open breaker = %v, want ErrBreakerOpen", err)
	}
	if invoked {
		t.Fatal("operation invoked while breaker open")
	}
}

func TestBreakerStaysOpenBeforeResetTimeout(t *testing.T) {
	b, now := newTestBreaker(t)
	failNTimes(t, b, 3)

	*now = now.Add(5 * time.Second)
	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, domain.ErrBreakerOpen) || invoked {
		t.Fatalf("call before reset timeout: err=%v invoked=%v", err, invoked)
	}
}

func TestBreakerProbesAfterResetTimeout(t *testing.T) {
	b, now := newTestBreaker(t)
	failNTimes(t, b, 3)

	*now = now.Add(31 * time.Second)
	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe after reset timeout failed: %v", err)
	}
	snap := b.Snapshot()
	if snap.State != StateHalfOpen || snap.SuccessCount != 1 {
		t.Fatalf("after first probe success: state=%s success=%d, want %s/1", snap.State, snap.SuccessCount, StateHalfOpen)
	}

	// Second consecutive probe success closes the circuit.
	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("second probe failed: %v", err)
	}
	if got := b.Snapshot().State; got != StateClosed {
		t.Fatalf("state after two probe successes = %s, want %s", got, StateClosed)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)
	failNTimes(t, b, 3)

	*now = now.Add(31 * time.Second)
	failNTimes(t, b, 1)

	snap := b.Snapshot()
	if snap.State != StateOpen {
		t.Fatalf("state after probe failure = %s, want %s", snap.State, StateOpen)
	}
	if want := now.Add(30 * time.Second); !snap.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", snap.NextAttemptAt, want)
	}
}

func TestBreakerSingleProbeAtATime(t *testing.T) {
	b, now := newTestBreaker(t)
	failNTimes(t, b, 3)
	*now = now.Add(31 * time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	// While the probe is in flight, other callers are still rejected.
	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, domain.ErrBreakerOpen) || invoked {
		t.Fatalf("concurrent call during probe: err=%v invoked=%v", err, invoked)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe returned %v", err)
	}
}

func TestBreakerClosedSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(t)
	failNTimes(t, b, 2)

	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("success failed: %v", err)
	}
	if got := b.Snapshot().FailureCount; got != 0 {
		t.Fatalf("failure count after success = %d, want 0", got)
	}

	// The counter restarted, so two more failures do not open the circuit.
	failNTimes(t, b, 2)
	if got := b.Snapshot().State; got != StateClosed {
		t.Fatalf("state = %s, want %s", got, StateClosed)
	}
}

func TestBreakerMonitoringPeriodExpiresStaleFailures(t *testing.T) {
	b, now := newTestBreaker(t)
	failNTimes(t, b, 2)

	*now = now.Add(3 * time.Minute)
	failNTimes(t, b, 1)

	snap := b.Snapshot()
	if snap.State != StateClosed || snap.FailureCount != 1 {
		t.Fatalf("after stale failures expired: state=%s failures=%d, want %s/1", snap.State, snap.FailureCount, StateClosed)
	}
}

func TestBreakerTimeoutCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("timeout call %d: got %v", i+1, err)
		}
	}
	if got := b.Snapshot().State; got != StateOpen {
		t.Fatalf("state after timeouts = %s, want %s", got, StateOpen)
	}
}

// reentrantStore calls back into its breaker from Save. The callback would
// deadlock if the breaker held its own lock across the store write.
type reentrantStore struct {
	b     *Breaker
	saved []Snapshot
}

func (s *reentrantStore) Load(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}

func (s *reentrantStore) Save(_ context.Context, _ string, snap Snapshot) error {
	if s.b != nil {
		_ = s.b.Snapshot()
	}
	s.saved = append(s.saved, snap)
	return nil
}

func TestStoreSaveRunsOutsideLock(t *testing.T) {
	store := &reentrantStore{}
	b := New("generation-service", testConfig(), zerolog.Nop(), store)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	store.b = b

	failNTimes(t, b, 3)
	if len(store.saved) != 1 || store.saved[0].State != StateOpen {
		t.Fatalf("saved snapshots = %+v, want one open", store.saved)
	}

	// Probe and recovery flips are mirrored too.
	now = now.Add(31 * time.Second)
	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i+1, err)
		}
	}
	if got := len(store.saved); got != 3 {
		t.Fatalf("saved snapshots = %d, want 3", got)
	}
	if got := store.saved[len(store.saved)-1].State; got != StateClosed {
		t.Fatalf("final mirrored state = %s, want %s", got, StateClosed)
	}
}

func TestRegistryIsolatesDependencies(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), NewMemoryStore())
	gen := reg.Get(DepGenerationService, testConfig())
	other := reg.Get("asset-storage", testConfig())
	if gen == other {
		t.Fatal("registry returned the same breaker for two dependencies")
	}

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	gen.now = func() time.Time { return now }
	failNTimes(t, gen, 3)

	if got := other.Snapshot().State; got != StateClosed {
		t.Fatalf("second breaker state = %s after generation outage, want %s", got, StateClosed)
	}
	if got := reg.Get(DepGenerationService, testConfig()); got != gen {
		t.Fatal("registry did not return the existing breaker")
	}
	if got := len(reg.Snapshots()); got != 2 {
		t.Fatalf("snapshot count = %d, want 2", got)
	}
}
