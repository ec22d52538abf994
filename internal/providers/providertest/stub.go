// Package providertest provides a scriptable providers.Adapter for tests.
package providertest

import (
	"context"
	"sync"

	"llm_router/internal/providers"
)

// Stub is an in-memory adapter. It returns Result (or Err) and records calls.
type Stub struct {
	ProviderName string
	Result       *providers.Result
	Err          error

	// ChatFunc, when set, replaces Result/Err.
	ChatFunc func(ctx context.Context, slug string, messages []providers.Message) (*providers.Result, error)

	mu    sync.Mutex
	calls []Call
}

// Call is one recorded Chat invocation
type Call struct {
	Slug     string
	Messages []providers.Message
}

// New returns a stub answering with content and the given token counts
func New(name, content string, in, out int64) *Stub {
	return &Stub{
		ProviderName: name,
		Result:       &providers.Result{Content: content, InputTokens: in, OutputTokens: out},
	}
}

func (s *Stub) Name() string { return s.ProviderName }

func (s *Stub) Chat(ctx context.Context, slug string, messages []providers.Message) (*providers.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Slug: slug, Messages: messages})
	s.mu.Unlock()

	if s.ChatFunc != nil {
		return s.ChatFunc(ctx, slug, messages)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	res := *s.Result
	return &res, nil
}

func (s *Stub) Close() error { return nil }

// Calls returns the number of Chat invocations
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// LastCall returns the most recent invocation
func (s *Stub) LastCall() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}, false
	}
	return s.calls[len(s.calls)-1], true
}
