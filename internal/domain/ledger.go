package domain

import "time"

// LedgerReason tags every credit mutation with why it happened.
type LedgerReason string

const (
	LedgerReasonPurchase      LedgerReason = "purchase"
	LedgerReasonRefund        LedgerReason = "refund"
	LedgerReasonJobReserve    LedgerReason = "job_reserve"
	LedgerReasonJobReconcile  LedgerReason = "job_reconcile"
	LedgerReasonJobRelease    LedgerReason = "job_release"
	LedgerReasonPaymentFailed LedgerReason = "payment_failed"
)

// LedgerEntry is one audited mutation of a user's credit balance. Delta is
// signed; BalanceAfter is captured atomically with the mutation so the audit
// trail replays to the live balance.
type LedgerEntry struct {
	ID           string
	UserID       string
	Delta        int64
	BalanceAfter int64
	Reason       LedgerReason
	ReferenceID  string
	CreatedAt    time.Time
}
