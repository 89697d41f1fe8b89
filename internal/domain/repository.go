package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation jobs. Transition methods
// are conditional updates: they succeed only when the row still holds the
// expected prior status, so two scheduler ticks can never double-dispatch
// the same job.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	GetByMockupID(ctx context.Context, mockupID string) (*GenerationJob, error)
	ListByIDs(ctx context.Context, jobIDs []string) ([]GenerationJob, error)

	// ListEligible returns queued jobs whose retry time is unset or due,
	// ordered by priority ascending then queued_at ascending.
	ListEligible(ctx context.Context, now time.Time, limit int) ([]GenerationJob, error)

	// Claim transitions queued -> processing, increments attempts and sets
	// started_at on first dispatch. Returns the claimed job, or ok=false
	// when another instance won the race.
	Claim(ctx context.Context, jobID string, now time.Time) (job *GenerationJob, ok bool, err error)

	// MarkCompleted transitions processing -> completed with the final cost.
	MarkCompleted(ctx context.Context, jobID string, actualCredits int64, now time.Time) error

	// MarkRetry transitions processing -> queued with the attempt's error
	// and the scheduled retry time.
	MarkRetry(ctx context.Context, jobID, errMsg string, nextRetryAt time.Time) error

	// MarkFailed transitions processing -> failed terminally.
	MarkFailed(ctx context.Context, jobID, errMsg string, now time.Time) error

	// Cancel transitions queued -> cancelled; ErrJobNotCancellable when the
	// job had already left queued.
	Cancel(ctx context.Context, jobID string, now time.Time) error

	// ListStuck returns processing jobs whose started_at is older than the
	// cutoff, i.e. a scheduler crashed between claim and outcome.
	ListStuck(ctx context.Context, cutoff time.Time) ([]GenerationJob, error)
}

// MockupRepository handles persistence for mockup artifacts.
type MockupRepository interface {
	Create(ctx context.Context, m *Mockup) error
	GetByID(ctx context.Context, id string) (*Mockup, error)
	SetResult(ctx context.Context, id, resultKey string) error
	SetStatus(ctx context.Context, id string, status MockupStatus) error
}

// LedgerRepository mutates user credit balances with an audit entry per
// mutation. Debit fails with ErrInsufficientCredits when the balance cannot
// cover the amount; DebitFloored clamps at zero instead.
type LedgerRepository interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, reason LedgerReason, referenceID string) (*LedgerEntry, error)
	Debit(ctx context.Context, userID string, amount int64, reason LedgerReason, referenceID string) (*LedgerEntry, error)
	DebitFloored(ctx context.Context, userID string, amount int64, reason LedgerReason, referenceID string) (*LedgerEntry, error)
}

// BillingRepository applies webhook-driven ledger mutations exactly once per
// upstream event identifier. Each method writes the idempotency record and
// the mutation in a single transaction; applied=false means the event id had
// been seen before and nothing changed.
type BillingRepository interface {
	CreditPurchase(ctx context.Context, eventID, userID string, credits int64) (applied bool, err error)
	RecordPaymentFailure(ctx context.Context, eventID, userID, reason string) (applied bool, err error)
	RefundPurchase(ctx context.Context, eventID, userID string, credits int64) (applied bool, err error)
}
