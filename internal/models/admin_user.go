package models

import (
	"slices"
	"time"

	"github.com/lib/pq"
)

// AdminUser can log in to the management API.
type AdminUser struct {
	ID           int64          `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"` // argon2id, PHC encoded
	Roles        pq.StringArray `db:"roles"`
	Enabled      bool           `db:"enabled"`
	LastLoginAt  *time.Time     `db:"last_login_at"`
	CreatedAt    time.Time      `db:"created_at"`
}

// HasRole checks if the user has a specific role
func (u *AdminUser) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// HasAnyRole checks if the user has any of the specified roles
func (u *AdminUser) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}
