package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"llm_router/internal/models"
)

// Ledger commits metered usage: it debits the account, bumps the API key
// counters and appends the usage record in a single transaction.
type Ledger struct {
	db *DB
}

// NewLedger creates a new ledger
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// Commit applies rec atomically and returns the account balance after the
// debit. The debit is conditional on the balance covering the cost, so
// concurrent commits against one account serialize on the row lock and the
// balance never goes negative. ErrInsufficientBalance is returned (and
// nothing is written) when it would.
func (l *Ledger) Commit(ctx context.Context, rec *models.UsageRecord) (int64, error) {
	var balance int64

	err := l.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE accounts
			SET credits = credits - $2
			WHERE id = $1 AND credits >= $2
			RETURNING credits
		`, rec.AccountID, rec.TotalCreditsConsumed).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("failed to debit account: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE api_keys
			SET credits_consumed = credits_consumed + $2, last_used = NOW()
			WHERE id = $1
		`, rec.APIKeyID, rec.TotalCreditsConsumed)
		if err != nil {
			return fmt.Errorf("failed to update API key usage: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrAPIKeyNotFound
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO conversations (
				request_id, account_id, api_key_id, model_provider_mapping_id,
				input, output, input_token_count, output_token_count, total_credits_consumed
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at
		`,
			rec.RequestID, rec.AccountID, rec.APIKeyID, rec.MappingID,
			rec.Input, rec.Output, rec.InputTokenCount, rec.OutputTokenCount, rec.TotalCreditsConsumed,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert usage record: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}
