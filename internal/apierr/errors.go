// Package apierr defines the error taxonomy shared by the gateway core.
//
// Every failure that can end a completion request is an *Error carrying a
// Kind. Callers compare with errors.Is against the package sentinels, which
// match on Kind only, so wrapped and re-worded errors still compare equal.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway error.
type Kind string

const (
	KindUnauthorized                  Kind = "unauthorized"
	KindForbidden                     Kind = "forbidden"
	KindInsufficientCredits           Kind = "insufficient_credits"
	KindBadRequest                    Kind = "bad_request"
	KindRateLimited                   Kind = "rate_limited"
	KindModelNotFound                 Kind = "model_not_found"
	KindNoProviderAvailable           Kind = "no_provider_available"
	KindProviderImplementationMissing Kind = "provider_implementation_missing"
	KindEmptyResponse                 Kind = "empty_response"
	KindUpstreamError                 Kind = "upstream_error"
	KindMeteringDataMissing           Kind = "metering_data_missing"
	KindTransactionFailed             Kind = "transaction_failed"
	KindInternal                      Kind = "internal_error"
)

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrUnauthorized                  = New(KindUnauthorized, "invalid api key")
	ErrForbidden                     = New(KindForbidden, "api key is disabled")
	ErrInsufficientCredits           = New(KindInsufficientCredits, "not enough credits in your account")
	ErrBadRequest                    = New(KindBadRequest, "invalid request")
	ErrRateLimited                   = New(KindRateLimited, "rate limit exceeded")
	ErrModelNotFound                 = New(KindModelNotFound, "model is not supported")
	ErrNoProviderAvailable           = New(KindNoProviderAvailable, "no providers available for this model")
	ErrProviderImplementationMissing = New(KindProviderImplementationMissing, "provider implementation not found")
	ErrEmptyResponse                 = New(KindEmptyResponse, "empty response from provider")
	ErrUpstreamError                 = New(KindUpstreamError, "provider request failed")
	ErrMeteringDataMissing           = New(KindMeteringDataMissing, "provider did not report token usage")
	ErrTransactionFailed             = New(KindTransactionFailed, "failed to record usage")
	ErrInternal                      = New(KindInternal, "internal server error")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsPreflight reports whether kind is a failure raised before any provider
// call was made. These are cheap and carry no side effects.
func IsPreflight(kind Kind) bool {
	switch kind {
	case KindUnauthorized, KindForbidden, KindInsufficientCredits, KindBadRequest,
		KindRateLimited, KindModelNotFound, KindNoProviderAvailable, KindProviderImplementationMissing:
		return true
	}
	return false
}
