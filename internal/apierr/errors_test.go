package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Wrap(KindUpstreamError, "openai: status 502", errors.New("bad gateway"))

	assert.True(t, errors.Is(err, ErrUpstreamError))
	assert.False(t, errors.Is(err, ErrEmptyResponse))

	wrapped := fmt.Errorf("chat: %w", err)
	assert.True(t, errors.Is(wrapped, ErrUpstreamError))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstreamError, "request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), string(KindUpstreamError))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", ErrModelNotFound, KindModelNotFound},
		{"wrapped", fmt.Errorf("route: %w", ErrNoProviderAvailable), KindNoProviderAvailable},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsPreflight(t *testing.T) {
	assert.True(t, IsPreflight(KindUnauthorized))
	assert.True(t, IsPreflight(KindModelNotFound))
	assert.True(t, IsPreflight(KindRateLimited))
	assert.False(t, IsPreflight(KindUpstreamError))
	assert.False(t, IsPreflight(KindTransactionFailed))
	assert.False(t, IsPreflight(KindInternal))
}
