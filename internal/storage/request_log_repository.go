package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"llm_router/internal/logging"
)

// RequestLogRepository persists drained request audit records
type RequestLogRepository struct {
	db *DB
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db *DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

// WriteBatch inserts records in a single transaction
func (r *RequestLogRepository) WriteBatch(ctx context.Context, records []*logging.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO request_logs (
			request_id, logged_at, account_id, api_key_id, model, provider, mapping_id,
			input_tokens, output_tokens, cost, state, provider_ms, gateway_ms, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			_, err := tx.ExecContext(ctx, query,
				rec.RequestID, rec.Timestamp,
				nullInt64(rec.AccountID), nullInt64(rec.APIKeyID),
				rec.Model, nullString(rec.Provider), nullInt64(rec.MappingID),
				rec.InputTokens, rec.OutputTokens, rec.Cost, rec.State,
				rec.ProviderMs, rec.GatewayMs, nullString(rec.Error),
			)
			if err != nil {
				return fmt.Errorf("failed to insert request log %s: %w", rec.RequestID, err)
			}
		}
		return nil
	})
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
