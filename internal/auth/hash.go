package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// APIKeyPrefix marks gateway-issued API keys
const APIKeyPrefix = "sk-"

// HashAPIKey returns the hex SHA-256 of a plaintext API key. Only this hash
// is stored; lookups hash the presented token the same way.
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a new random plaintext API key
func GenerateAPIKey() string {
	return APIKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
