package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
	"mockforge/internal/sqlinline"
)

// BillingRepositoryPG implements domain.BillingRepository. Each apply runs
// in one transaction: the idempotency insert doubles as the dedup check, and
// the ledger mutation plus audit entry commit with it or not at all.
type BillingRepositoryPG struct {
	runner *infra.SQLRunner
}

// NewBillingRepository creates a billing repository backed by PostgreSQL.
func NewBillingRepository(runner *infra.SQLRunner) *BillingRepositoryPG {
	return &BillingRepositoryPG{runner: runner}
}

// CreditPurchase applies a first-seen payment.succeeded event.
func (r *BillingRepositoryPG) CreditPurchase(ctx context.Context, eventID, userID string, credits int64) (bool, error) {
	return r.applyOnce(ctx, eventID, "payment.succeeded", userID, func(tx infra.SQLExecutor) (int64, string, error) {
		entry, err := NewLedgerRepository(tx).Credit(ctx, userID, credits, domain.LedgerReasonPurchase, eventID)
		if err != nil {
			return 0, "", err
		}
		return entry.Delta, "", nil
	})
}

// RecordPaymentFailure audits a payment.failed event without touching credits.
func (r *BillingRepositoryPG) RecordPaymentFailure(ctx context.Context, eventID, userID, reason string) (bool, error) {
	return r.applyOnce(ctx, eventID, "payment.failed", userID, func(infra.SQLExecutor) (int64, string, error) {
		return 0, reason, nil
	})
}

// RefundPurchase debits the original credit amount, floored at zero.
func (r *BillingRepositoryPG) RefundPurchase(ctx context.Context, eventID, userID string, credits int64) (bool, error) {
	return r.applyOnce(ctx, eventID, "payment.refunded", userID, func(tx infra.SQLExecutor) (int64, string, error) {
		entry, err := NewLedgerRepository(tx).DebitFloored(ctx, userID, credits, domain.LedgerReasonRefund, eventID)
		if err != nil {
			return 0, "", err
		}
		return entry.Delta, "", nil
	})
}

// applyOnce inserts the idempotency record and, when it is first-seen, runs
// mutate and writes the audit row in the same transaction. A duplicate event
// aborts the transaction with ErrDuplicateEvent, which callers swallow into
// applied=false so the delivery still acknowledges.
func (r *BillingRepositoryPG) applyOnce(ctx context.Context, eventID, eventType, userID string, mutate func(tx infra.SQLExecutor) (delta int64, detail string, err error)) (bool, error) {
	err := r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		tag, err := tx.Exec(ctx, sqlinline.QInsertIdempotencyRecord, eventID, eventType, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrDuplicateEvent
		}
		delta, detail, err := mutate(tx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sqlinline.QInsertWebhookAudit,
			uuid.NewString(), eventID, eventType, userID, delta, detail)
		return err
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		return false, nil
	}
	return err == nil, err
}

var _ domain.BillingRepository = (*BillingRepositoryPG)(nil)
