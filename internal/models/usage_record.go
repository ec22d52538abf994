package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the append-only ledger entry written for every billed
// request. It is never updated or deleted once committed.
type UsageRecord struct {
	ID                   int64     `db:"id" json:"id"`
	RequestID            uuid.UUID `db:"request_id" json:"request_id"`
	AccountID            int64     `db:"account_id" json:"account_id"`
	APIKeyID             int64     `db:"api_key_id" json:"api_key_id"`
	MappingID            int64     `db:"model_provider_mapping_id" json:"model_provider_mapping_id"`
	Input                string    `db:"input" json:"input"`
	Output               string    `db:"output" json:"output"`
	InputTokenCount      int64     `db:"input_token_count" json:"input_token_count"`
	OutputTokenCount     int64     `db:"output_token_count" json:"output_token_count"`
	TotalCreditsConsumed int64     `db:"total_credits_consumed" json:"total_credits_consumed"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}
