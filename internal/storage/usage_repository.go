package storage

import (
	"context"
	"fmt"

	"llm_router/internal/models"
)

// UsageRepository reads committed usage records. Writes go through Ledger.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// ListByAccount returns the newest usage records of an account
func (r *UsageRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, request_id, account_id, api_key_id, model_provider_mapping_id,
			input, output, input_token_count, output_token_count, total_credits_consumed, created_at
		FROM conversations
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	var records []*models.UsageRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}
