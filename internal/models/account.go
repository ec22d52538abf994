package models

import "time"

// Account owns API keys and a spendable credit balance.
// Credits are only debited by the metering ledger and credited by top-ups.
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Credits   int64     `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasCredits reports whether the balance allows a new request.
func (a *Account) HasCredits() bool {
	return a.Credits > 0
}

// OnRampStatus is the lifecycle state of a top-up.
type OnRampStatus string

const (
	OnRampPending  OnRampStatus = "pending"
	OnRampComplete OnRampStatus = "complete"
)

// OnRampTransaction records a credit top-up against an account.
type OnRampTransaction struct {
	ID        int64        `db:"id" json:"id"`
	AccountID int64        `db:"account_id" json:"account_id"`
	Amount    int64        `db:"amount" json:"amount"`
	Status    OnRampStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
