package providers

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"llm_router/internal/apierr"
	"llm_router/internal/config"
)

// Registry maps provider names to adapters. Adapters are constructed once
// at startup and shared by every request.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// NewRegistryFromConfig builds an adapter for every provider with
// credentials configured.
func NewRegistryFromConfig(cfg config.ProvidersConfig) *Registry {
	r := NewRegistry()
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	if cfg.OpenAI.Enabled() {
		r.Register(NewOpenAIAdapter(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, timeout))
	}
	if cfg.Anthropic.Enabled() {
		r.Register(NewAnthropicAdapter(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, timeout))
	}
	if cfg.Google.Enabled() {
		r.Register(NewGeminiAdapter(cfg.Google.APIKey, cfg.Google.BaseURL, timeout))
	}
	return r
}

// Register adds or replaces the adapter for a.Name()
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

// Lookup returns the adapter whose name matches providerName exactly,
// ignoring case. It fails with ProviderImplementationMissing otherwise.
func (r *Registry) Lookup(providerName string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[strings.ToLower(providerName)]
	if !ok {
		return nil, apierr.New(apierr.KindProviderImplementationMissing, "no adapter for provider "+providerName)
	}
	return a, nil
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every adapter
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, a := range r.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
