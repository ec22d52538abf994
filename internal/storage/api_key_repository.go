package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"llm_router/internal/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, account_id, name, key_hash, disabled, deleted, credits_consumed, last_used, created_at`

// GetByHash retrieves an API key by the SHA-256 hash of its token
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var key models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	err := r.db.conn.GetContext(ctx, &key, query, keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// Create inserts a new API key. Only the hash is stored.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (account_id, name, key_hash, disabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.conn.QueryRowContext(ctx, query, key.AccountID, key.Name, key.KeyHash, key.Disabled).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// ListByAccount returns the non-deleted keys of an account
func (r *APIKeyRepository) ListByAccount(ctx context.Context, accountID int64) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE account_id = $1 AND deleted = false
		ORDER BY id
	`

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// GetByID retrieves a non-deleted API key
func (r *APIKeyRepository) GetByID(ctx context.Context, id int64) (*models.APIKey, error) {
	var key models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1 AND deleted = false`

	err := r.db.conn.GetContext(ctx, &key, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// SetDisabled enables or disables a non-deleted key and returns it
func (r *APIKeyRepository) SetDisabled(ctx context.Context, id int64, disabled bool) (*models.APIKey, error) {
	var key models.APIKey
	query := `
		UPDATE api_keys SET disabled = $2
		WHERE id = $1 AND deleted = false
		RETURNING ` + apiKeyColumns

	err := r.db.conn.GetContext(ctx, &key, query, id, disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to update API key: %w", err)
	}

	return &key, nil
}

// Delete soft-deletes a key. The row stays so usage records keep their
// reference and the token keeps resolving to a rejected key.
func (r *APIKeyRepository) Delete(ctx context.Context, id int64) error {
	query := `UPDATE api_keys SET deleted = true, disabled = true WHERE id = $1 AND deleted = false`

	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}
