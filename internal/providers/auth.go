package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator handles authentication for a provider.
type Authenticator interface {
	// Authenticate prepares authentication for a request
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext holds authentication information for a request
type AuthContext interface {
	// ApplyToRequest applies authentication to an HTTP request
	ApplyToRequest(ctx context.Context, req *http.Request) error
}

// SimpleAPIKeyAuth sends a static API key in a request header.
// OpenAI uses "Authorization: Bearer <key>", Anthropic "x-api-key: <key>"
// and Gemini "x-goog-api-key: <key>".
type SimpleAPIKeyAuth struct {
	apiKey     string
	headerName string
	prefix     string
}

// NewSimpleAPIKeyAuth creates a new simple API key authenticator.
// An empty headerName defaults to Authorization; prefix may be empty.
func NewSimpleAPIKeyAuth(apiKey, headerName, prefix string) *SimpleAPIKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
	}

	return &SimpleAPIKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// Authenticate returns an auth context with the API key
func (a *SimpleAPIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return a, nil
}

// ApplyToRequest adds the API key to the HTTP request
func (a *SimpleAPIKeyAuth) ApplyToRequest(ctx context.Context, req *http.Request) error {
	req.Header.Set(a.headerName, a.prefix+a.apiKey)
	return nil
}
