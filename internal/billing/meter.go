package billing

import (
	"context"
	"errors"

	"llm_router/internal/apierr"
	"llm_router/internal/models"
	"llm_router/internal/storage"
)

// Ledger commits a usage record and its debit atomically, returning the
// new balance
type Ledger interface {
	CommitUsage(ctx context.Context, rec *models.UsageRecord) (int64, error)
}

// Meter performs the metering transaction
type Meter struct {
	ledger Ledger
}

func NewMeter(ledger Ledger) *Meter {
	return &Meter{ledger: ledger}
}

// Commit debits rec.TotalCreditsConsumed from rec.AccountID and appends rec,
// all or nothing. A balance that cannot cover the cost fails with
// InsufficientCredits; any other failure is TransactionFailed.
func (m *Meter) Commit(ctx context.Context, rec *models.UsageRecord) (int64, error) {
	if rec.TotalCreditsConsumed < 0 {
		return 0, apierr.New(apierr.KindTransactionFailed, "negative cost")
	}

	balance, err := m.ledger.CommitUsage(ctx, rec)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return 0, apierr.Wrap(apierr.KindInsufficientCredits, "not enough credits in your account", err)
		}
		return 0, apierr.Wrap(apierr.KindTransactionFailed, "failed to record usage", err)
	}
	return balance, nil
}
