package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
	"mockforge/internal/sqlinline"
)

// LedgerRepositoryPG implements domain.LedgerRepository. It takes any
// SQLExecutor so the billing repository can reuse it inside a transaction.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewLedgerRepository creates a ledger repository backed by PostgreSQL.
func NewLedgerRepository(sql infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

// Balance returns the user's current credit balance.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Credit adds amount to the balance and records the audit entry.
func (r *LedgerRepositoryPG) Credit(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, referenceID string) (*domain.LedgerEntry, error) {
	if amount < 0 {
		return nil, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	var balance int64
	if err := r.sql.QueryRow(ctx, sqlinline.QCreditBalance, userID, amount).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.record(ctx, userID, amount, balance, reason, referenceID)
}

// Debit subtracts amount, failing with ErrInsufficientCredits when the
// balance cannot cover it.
func (r *LedgerRepositoryPG) Debit(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, referenceID string) (*domain.LedgerEntry, error) {
	if amount < 0 {
		return nil, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	var balance int64
	if err := r.sql.QueryRow(ctx, sqlinline.QDebitBalance, userID, amount).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			// The guard rejected the row; distinguish missing user from
			// insufficient balance.
			if _, berr := r.Balance(ctx, userID); berr != nil {
				return nil, berr
			}
			return nil, domain.ErrInsufficientCredits
		}
		return nil, err
	}
	return r.record(ctx, userID, -amount, balance, reason, referenceID)
}

// DebitFloored subtracts amount but clamps the balance at zero; the audit
// entry records the delta actually applied.
func (r *LedgerRepositoryPG) DebitFloored(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, referenceID string) (*domain.LedgerEntry, error) {
	if amount < 0 {
		return nil, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	var balance, prev int64
	if err := r.sql.QueryRow(ctx, sqlinline.QDebitBalanceFloored, userID, amount).Scan(&balance, &prev); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.record(ctx, userID, balance-prev, balance, reason, referenceID)
}

func (r *LedgerRepositoryPG) record(ctx context.Context, userID string, delta, balanceAfter int64, reason domain.LedgerReason, referenceID string) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: balanceAfter,
		Reason:       reason,
		ReferenceID:  referenceID,
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertLedgerEntry,
		entry.ID, entry.UserID, entry.Delta, entry.BalanceAfter, entry.Reason, entry.ReferenceID)
	if err := row.Scan(&entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("record ledger entry: %w", err)
	}
	return entry, nil
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
