package models

import "time"

// APIKey is a bearer credential owned by an account.
// Only the SHA-256 hash of the token is stored.
type APIKey struct {
	ID              int64      `db:"id" json:"id"`
	AccountID       int64      `db:"account_id" json:"account_id"`
	Name            string     `db:"name" json:"name"`
	KeyHash         string     `db:"key_hash" json:"-"`
	Disabled        bool       `db:"disabled" json:"disabled"`
	Deleted         bool       `db:"deleted" json:"-"`
	CreditsConsumed int64      `db:"credits_consumed" json:"credits_consumed"`
	LastUsed        *time.Time `db:"last_used" json:"last_used,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// IsUsable reports whether the key may authorize requests.
func (k *APIKey) IsUsable() bool {
	return !k.Disabled && !k.Deleted
}
