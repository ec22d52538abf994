package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"llm_router/internal/apierr"
	"llm_router/internal/auth"
	"llm_router/internal/billing"
	"llm_router/internal/logging"
	"llm_router/internal/providers"
	"llm_router/internal/providers/providertest"
	"llm_router/internal/ratelimit"
	"llm_router/internal/routing"
	"llm_router/internal/storage"
)

const catalogSeed = `
companies:
  - name: OpenAI
  - name: Meta
providers:
  - name: OpenAI
  - name: Cohere
models:
  - name: GPT-4
    slug: gpt-4
    company: OpenAI
    providers:
      - provider: OpenAI
        input_token_cost: 0.5
        output_token_cost: 1.5
  - name: Llama 3
    slug: llama-3
    company: Meta
  - name: Command R
    slug: command-r
    company: OpenAI
    providers:
      - provider: Cohere
        input_token_cost: 1
        output_token_cost: 1
accounts:
  - email: dev@example.com
    credits: 100
    api_keys:
      - name: dev
        token: sk-dev
  - email: broke@example.com
    credits: 0
    api_keys:
      - name: broke
        token: sk-broke
  - email: low@example.com
    credits: 10
    api_keys:
      - name: low
        token: sk-low
`

type recordingSink struct {
	mu      sync.Mutex
	records []logging.LogRecord
}

func (s *recordingSink) Enqueue(rec *logging.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *recordingSink) last() logging.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[len(s.records)-1]
}

type fixture struct {
	store *storage.MemoryStore
	stub  *providertest.Stub
	sink  *recordingSink
	svc   *Service
}

type fixtureOption func(*Options)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()

	seed, err := storage.ParseSeed([]byte(catalogSeed))
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	_, err = storage.ApplyCatalog(ctx, store, seed)
	require.NoError(t, err)
	require.NoError(t, storage.ApplyAccounts(ctx, store, seed, auth.HashAPIKey))

	stub := providertest.New(providers.NameOpenAI, "Hello!", 5, 3)
	sink := &recordingSink{}

	o := Options{
		Guard:      billing.NewGuard(store),
		Router:     routing.NewRouter(store, providers.NewRegistry(stub), nil),
		Calculator: billing.FlatRate{Multiplier: 2},
		Meter:      billing.NewMeter(store),
		Sink:       sink,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &fixture{store: store, stub: stub, sink: sink, svc: NewService(o)}
}

func (f *fixture) balance(t *testing.T, token string) int64 {
	t.Helper()
	ctx := context.Background()
	key, err := f.store.GetAPIKeyByHash(ctx, auth.HashAPIKey(token))
	require.NoError(t, err)
	account, err := f.store.GetAccount(ctx, key.AccountID)
	require.NoError(t, err)
	return account.Credits
}

func hi(model string) ChatRequest {
	return ChatRequest{Model: model, Messages: []ChatMessage{{Role: "user", Content: "Hi"}}}
}

func TestProcess_CommitsAndDebits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Process(ctx, "sk-dev", hi("openai/gpt-4"))
	require.NoError(t, err)

	assert.Equal(t, "Hello!", c.Content)
	assert.Equal(t, int64(5), c.InputTokens)
	assert.Equal(t, int64(3), c.OutputTokens)
	assert.Equal(t, int64(16), c.Cost)
	assert.Equal(t, int64(84), c.Balance)
	assert.Equal(t, "gpt-4", c.Model)
	assert.Equal(t, providers.NameOpenAI, c.Provider)

	assert.Equal(t, int64(84), f.balance(t, "sk-dev"))
	assert.Equal(t, 1, f.store.UsageCount())

	key, err := f.store.GetAPIKeyByHash(ctx, auth.HashAPIKey("sk-dev"))
	require.NoError(t, err)
	usage, err := f.store.UsageByAccount(ctx, key.AccountID, 10)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, c.RequestID, usage[0].RequestID)
	assert.Equal(t, int64(5), usage[0].InputTokenCount)
	assert.Equal(t, int64(3), usage[0].OutputTokenCount)
	assert.Equal(t, int64(16), usage[0].TotalCreditsConsumed)
	assert.Equal(t, c.MappingID, usage[0].MappingID)
	assert.JSONEq(t, `[{"role":"user","content":"Hi"}]`, usage[0].Input)
	assert.JSONEq(t, `{"message":{"content":"Hello!"}}`, usage[0].Output)

	call, ok := f.stub.LastCall()
	require.True(t, ok)
	assert.Equal(t, "gpt-4", call.Slug)
	assert.Equal(t, []providers.Message{{Role: providers.RoleUser, Content: "Hi"}}, call.Messages)

	rec := f.sink.last()
	assert.Equal(t, string(StateCommitted), rec.State)
	assert.Equal(t, int64(16), rec.Cost)
	assert.Empty(t, rec.Error)
}

func TestProcess_ZeroBalanceNeverCallsProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), "sk-broke", hi("openai/gpt-4"))
	assert.ErrorIs(t, err, apierr.ErrInsufficientCredits)
	assert.Zero(t, f.stub.Calls())
	assert.Equal(t, 0, f.store.UsageCount())
}

func TestProcess_UnknownKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), "sk-nope", hi("openai/gpt-4"))
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Zero(t, f.stub.Calls())
}

func TestProcess_RoutingFailures(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  error
	}{
		{"unknown model", "openai/not-a-model", apierr.ErrModelNotFound},
		{"model without mappings", "meta/llama-3", apierr.ErrNoProviderAvailable},
		{"provider without adapter", "cohere/command-r", apierr.ErrProviderImplementationMissing},
		{"empty slug", "openai/", apierr.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Process(context.Background(), "sk-dev", hi(tt.model))
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.stub.Calls())
			assert.Equal(t, int64(100), f.balance(t, "sk-dev"))
			assert.Equal(t, string(StateFailed), f.sink.last().State)
		})
	}
}

func TestProcess_HintDoesNotConstrainRouting(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.Process(context.Background(), "sk-dev", hi("anthropic/gpt-4"))
	require.NoError(t, err)
	assert.Equal(t, providers.NameOpenAI, c.Provider)

	c, err = f.svc.Process(context.Background(), "sk-dev", hi("gpt-4"))
	require.NoError(t, err)
	assert.Equal(t, int64(68), c.Balance)
}

func TestProcess_ProviderFailuresAreNotBilled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"transport failure", errors.New("connection refused"), apierr.ErrUpstreamError},
		{"upstream error", apierr.Wrap(apierr.KindUpstreamError, "openai returned 500", nil), apierr.ErrUpstreamError},
		{"empty response", apierr.New(apierr.KindEmptyResponse, "no choices"), apierr.ErrEmptyResponse},
		{"missing usage", apierr.New(apierr.KindMeteringDataMissing, "no usage"), apierr.ErrMeteringDataMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.stub.Err = tt.err

			_, err := f.svc.Process(context.Background(), "sk-dev", hi("openai/gpt-4"))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, f.stub.Calls())
			assert.Equal(t, int64(100), f.balance(t, "sk-dev"))
			assert.Equal(t, 0, f.store.UsageCount())

			rec := f.sink.last()
			assert.Equal(t, string(StateFailed), rec.State)
			assert.NotEmpty(t, rec.Error)
		})
	}
}

func TestProcess_CostAboveBalanceRollsBack(t *testing.T) {
	f := newFixture(t)

	// 16 credits against a balance of 10
	_, err := f.svc.Process(context.Background(), "sk-low", hi("openai/gpt-4"))
	assert.ErrorIs(t, err, apierr.ErrInsufficientCredits)
	assert.Equal(t, 1, f.stub.Calls())
	assert.Equal(t, int64(10), f.balance(t, "sk-low"))
	assert.Equal(t, 0, f.store.UsageCount())
}

func TestProcess_CallTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CallTimeout = 20 * time.Millisecond })
	f.stub.ChatFunc = func(ctx context.Context, _ string, _ []providers.Message) (*providers.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.svc.Process(context.Background(), "sk-dev", hi("openai/gpt-4"))
	assert.ErrorIs(t, err, apierr.ErrUpstreamError)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(100), f.balance(t, "sk-dev"))
}

func TestProcess_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  ChatRequest
	}{
		{"no model", ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "Hi"}}}},
		{"no messages", ChatRequest{Model: "openai/gpt-4"}},
		{"missing role", ChatRequest{Model: "openai/gpt-4", Messages: []ChatMessage{{Content: "Hi"}}}},
		{"unsupported role", ChatRequest{Model: "openai/gpt-4", Messages: []ChatMessage{{Role: "system", Content: "Hi"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Process(context.Background(), "sk-dev", tt.req)
			assert.ErrorIs(t, err, apierr.ErrBadRequest)
			assert.Zero(t, f.stub.Calls())
		})
	}
}

func TestProcess_ModelRoleIsAssistant(t *testing.T) {
	f := newFixture(t)

	req := ChatRequest{Model: "gpt-4", Messages: []ChatMessage{
		{Role: "user", Content: "Hi"},
		{Role: "model", Content: "Hello"},
		{Role: "user", Content: "Again"},
	}}
	_, err := f.svc.Process(context.Background(), "sk-dev", req)
	require.NoError(t, err)
	call, ok := f.stub.LastCall()
	require.True(t, ok)
	assert.Equal(t, providers.RoleAssistant, call.Messages[1].Role)
}

func TestProcess_RateLimited(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Limiter = ratelimit.NewLocalLimiter(1, 1) })

	_, err := f.svc.Process(context.Background(), "sk-dev", hi("gpt-4"))
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), "sk-dev", hi("gpt-4"))
	assert.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, 1, f.stub.Calls())
	assert.Equal(t, int64(84), f.balance(t, "sk-dev"))
}

func TestProcess_ConcurrentDebits(t *testing.T) {
	f := newFixture(t)
	f.stub.Result = &providers.Result{Content: "ok", InputTokens: 1, OutputTokens: 0}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Process(context.Background(), "sk-dev", hi("gpt-4"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(100-n*2), f.balance(t, "sk-dev"))
	assert.Equal(t, n, f.store.UsageCount())
}

func TestProcess_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)

	// 20 requests at 16 credits each against 100: at most 6 can commit
	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Process(context.Background(), "sk-dev", hi("gpt-4"))
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apierr.ErrInsufficientCredits)
		}()
	}
	wg.Wait()

	balance := f.balance(t, "sk-dev")
	assert.GreaterOrEqual(t, balance, int64(0))
	assert.Equal(t, int64(100)-int64(committed)*16, balance)
	assert.Equal(t, committed, f.store.UsageCount())
	assert.LessOrEqual(t, committed, 6)
}

func TestProcess_MappingRates(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Calculator = billing.MappingRates{} })

	c, err := f.svc.Process(context.Background(), "sk-dev", hi("gpt-4"))
	require.NoError(t, err)
	// ceil(5*0.5 + 3*1.5)
	assert.Equal(t, int64(7), c.Cost)
	assert.Equal(t, int64(93), c.Balance)
}

func TestProcess_LogSeverity(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	previous := logging.L()
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(previous) })

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, "sk-dev", hi("openai/unknown-model"))
	require.ErrorIs(t, err, apierr.ErrModelNotFound)

	f.stub.Err = errors.New("connection refused")
	_, err = f.svc.Process(ctx, "sk-dev", hi("openai/gpt-4"))
	require.ErrorIs(t, err, apierr.ErrUpstreamError)

	rejected := logs.FilterMessage("completion rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zap.InfoLevel, rejected[0].Level)
	assert.Equal(t, string(apierr.KindModelNotFound), rejected[0].ContextMap()["kind"])

	failed := logs.FilterMessage("completion failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zap.ErrorLevel, failed[0].Level)
	assert.Equal(t, string(StateRouted), failed[0].ContextMap()["failed_after"])
}
