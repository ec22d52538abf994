package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"llm_router/internal/models"
)

// AccountRepository handles account and top-up database operations
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	query := `
		SELECT id, email, credits, created_at
		FROM accounts
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &account, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// Create inserts a new account with the given opening balance
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (email, credits)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.db.conn.QueryRowContext(ctx, query, account.Email, account.Credits).
		Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// Credit records a completed top-up and increments the balance in one
// transaction. It returns the new balance.
func (r *AccountRepository) Credit(ctx context.Context, accountID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`UPDATE accounts SET credits = credits + $2 WHERE id = $1 RETURNING credits`,
			accountID, amount,
		).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("failed to credit account: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO onramp_transactions (account_id, amount, status) VALUES ($1, $2, $3)`,
			accountID, amount, models.OnRampComplete,
		)
		if err != nil {
			return fmt.Errorf("failed to record onramp transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// ListOnRamps returns the newest top-ups for an account
func (r *AccountRepository) ListOnRamps(ctx context.Context, accountID int64, limit int) ([]*models.OnRampTransaction, error) {
	query := `
		SELECT id, account_id, amount, status, created_at
		FROM onramp_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	var txs []*models.OnRampTransaction
	if err := r.db.conn.SelectContext(ctx, &txs, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list onramp transactions: %w", err)
	}
	return txs, nil
}
