package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"llm_router/internal/models"
	"llm_router/internal/storage"
)

// AdminTokenTTL is the lifetime of an admin JWT
const AdminTokenTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDisabled       = errors.New("admin user is disabled")
	ErrInvalidToken       = errors.New("invalid token")
)

// AdminClaims are the claims carried by an admin JWT
type AdminClaims struct {
	AdminID int64    `json:"admin_id"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	jwt.RegisteredClaims
}

// AdminStore is the subset of storage needed to log admins in
type AdminStore interface {
	GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	RecordAdminLogin(ctx context.Context, id int64) error
}

// GenerateAdminJWT signs a token for user valid for ttl
func GenerateAdminJWT(user *models.AdminUser, secret []byte, ttl time.Duration) (string, int64, error) {
	now := time.Now()
	exp := now.Add(ttl)

	claims := AdminClaims{
		AdminID: user.ID,
		Email:   user.Email,
		Roles:   []string(user.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signed, exp.Unix(), nil
}

// GenerateAdminJWTWithPassword checks email/password against the store and
// returns a signed token on success.
func GenerateAdminJWTWithPassword(ctx context.Context, email, password string, store AdminStore, secret []byte) (string, int64, error) {
	user, err := store.GetAdminUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAdminUserNotFound) {
			return "", 0, ErrInvalidCredentials
		}
		return "", 0, fmt.Errorf("failed to load admin user: %w", err)
	}

	ok, err := VerifyPasswordArgon2(password, user.PasswordHash)
	if err != nil || !ok {
		return "", 0, ErrInvalidCredentials
	}
	if !user.Enabled {
		return "", 0, ErrUserDisabled
	}

	token, exp, err := GenerateAdminJWT(user, secret, AdminTokenTTL)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	// best effort
	_ = store.RecordAdminLogin(ctx, user.ID)

	return token, exp, nil
}

// ValidateAdminJWT verifies signature and expiry and returns the claims
func ValidateAdminJWT(tokenString string, secret []byte) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
