package middleware

import (
	"context"
	"net/http"

	"llm_router/internal/billing"
	"llm_router/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// PrincipalKey is the context key for the authorized API key and account
	PrincipalKey ContextKey = "principal"
)

// Authorizer resolves an API key token to a principal
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*billing.Principal, error)
}

// APIKeyMiddleware runs the credit guard for the request's API key and adds
// the principal to the request context. Failures are rendered by onError.
func APIKeyMiddleware(authz Authorizer, onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				// a malformed header leaves the key empty, which the guard rejects
				apiKey, _ = utils.ParseBearer(r.Header.Get("Authorization"))
			}

			principal, err := authz.Authorize(r.Context(), apiKey)
			if err != nil {
				onError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal retrieves the authorized principal from the request context
func GetPrincipal(ctx context.Context) (*billing.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*billing.Principal)
	return p, ok
}
