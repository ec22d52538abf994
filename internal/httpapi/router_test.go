package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm_router/internal/auth"
	"llm_router/internal/billing"
	"llm_router/internal/config"
	"llm_router/internal/models"
	"llm_router/internal/providers"
	"llm_router/internal/providers/providertest"
	"llm_router/internal/storage"
)

const testSeed = `
companies:
  - name: OpenAI
  - name: Meta
providers:
  - name: OpenAI
    website: https://openai.com
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
`

var testJWTSecret = []byte("router-test-secret")

type server struct {
	store   *storage.MemoryStore
	stub    *providertest.Stub
	deps    *Dependencies
	handler http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWTSecret:   testJWTSecret,
		Cache:       config.CacheConfig{CatalogCacheSize: 100, CatalogCacheTTL: time.Minute},
		Providers:   config.ProvidersConfig{RequestTimeout: 5 * time.Second},
		Router:      config.RouterConfig{SelectionPolicy: "random"},
		Billing:     config.BillingConfig{CostPolicy: "flat", FlatMultiplier: 2},
		RequestLog:  config.RequestLogConfig{QueueKey: "gateway:requests", MaxSize: 100},
	}
}

func newServer(t *testing.T, redisClient *storage.RedisClient, opts ...func(*config.Config)) *server {
	t.Helper()
	ctx := context.Background()

	seed, err := storage.ParseSeed([]byte(testSeed))
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	_, err = storage.ApplyCatalog(ctx, store, seed)
	require.NoError(t, err)
	require.NoError(t, storage.ApplyAccounts(ctx, store, seed, auth.HashAPIKey))

	stub := providertest.New(providers.NameOpenAI, "Hello!", 5, 3)
	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	deps, err := Assemble(cfg, store, providers.NewRegistry(stub), redisClient)
	require.NoError(t, err)

	return &server{store: store, stub: stub, deps: deps, handler: NewRouter(deps, cfg)}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *server) account(t *testing.T, token string) *models.Account {
	t.Helper()
	p, err := billing.NewGuard(s.store).Authorize(context.Background(), token)
	require.NoError(t, err)
	return p.Account
}

func (s *server) adminToken(t *testing.T, roles ...string) string {
	t.Helper()
	user := &models.AdminUser{ID: 7, Email: "ops@example.com", Roles: pq.StringArray(roles), Enabled: true}
	token, _, err := auth.GenerateAdminJWT(user, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func chatBody(model string) map[string]any {
	return map[string]any{
		"model":    model,
		"messages": []map[string]string{{"role": "user", "content": "Hi"}},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestChatCompletions_Success(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("openai/gpt-4"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Completions struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"completions"`
		InputTokenConsumed  int64 `json:"inputTokenConsumed"`
		OutputTokenConsumed int64 `json:"outputTokenConsumed"`
	}
	decode(t, w, &resp)

	assert.Equal(t, "Hello!", resp.Completions.Message.Content)
	assert.Equal(t, int64(5), resp.InputTokenConsumed)
	assert.Equal(t, int64(3), resp.OutputTokenConsumed)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	assert.Equal(t, int64(84), s.account(t, "sk-dev").Credits)
	assert.Equal(t, 1, s.store.UsageCount())
}

func TestChatCompletions_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   any
		status int
		calls  int
	}{
		{name: "missing key", token: "", body: chatBody("gpt-4"), status: http.StatusForbidden},
		{name: "unknown key", token: "sk-nope", body: chatBody("gpt-4"), status: http.StatusForbidden},
		{name: "zero balance", token: "sk-broke", body: chatBody("gpt-4"), status: http.StatusForbidden},
		{name: "unknown model", token: "sk-dev", body: chatBody("unknown-model"), status: http.StatusForbidden},
		{name: "model without providers", token: "sk-dev", body: chatBody("llama-3"), status: http.StatusForbidden},
		{name: "provider without adapter", token: "sk-dev", body: chatBody("command-r"), status: http.StatusInternalServerError},
		{name: "empty messages", token: "sk-dev", body: map[string]any{"model": "gpt-4", "messages": []any{}}, status: http.StatusBadRequest},
		{name: "unknown field", token: "sk-dev", body: map[string]any{"model": "gpt-4", "stream": true}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, nil)

			w := s.do(t, http.MethodPost, "/api/v1/chat/completions", tt.token, tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			var body map[string]string
			decode(t, w, &body)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, tt.calls, s.stub.Calls())
			assert.Equal(t, 0, s.store.UsageCount())
		})
	}
}

func TestChatCompletions_ProviderFailure(t *testing.T) {
	s := newServer(t, nil)
	s.stub.Err = errors.New("connection refused to upstream 10.0.0.1")

	w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, int64(100), s.account(t, "sk-dev").Credits)
	assert.Equal(t, 0, s.store.UsageCount())
}

func TestChatCompletions_AuditRecordToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient, err := storage.NewRedisClient(storage.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	s := newServer(t, redisClient)

	w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	items, err := mr.List("gateway:requests")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"state":"committed"`)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newServer(t, nil)

	t.Run("list models", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/models", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Models []models.Model `json:"models"`
		}
		decode(t, w, &body)
		assert.Len(t, body.Models, 3)
	})

	t.Run("model detail with providers", func(t *testing.T) {
		m, err := s.store.ModelBySlug(context.Background(), "gpt-4")
		require.NoError(t, err)

		w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/models/%d", m.ID), "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Slug      string                        `json:"slug"`
			Providers []models.ModelProviderMapping `json:"providers"`
		}
		decode(t, w, &body)
		assert.Equal(t, "gpt-4", body.Slug)
		require.Len(t, body.Providers, 1)
		assert.Equal(t, 0.5, body.Providers[0].InputTokenCost)
		assert.Equal(t, 1.5, body.Providers[0].OutputTokenCost)
	})

	t.Run("model not found", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/models/99999", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid model id", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/models/abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("providers and mappings", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/providers", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var providersBody struct {
			Providers []models.Provider `json:"providers"`
		}
		decode(t, w, &providersBody)
		assert.Len(t, providersBody.Providers, 2)

		w = s.do(t, http.MethodGet, "/api/v1/mappings", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var mappingsBody struct {
			Mappings []models.ModelProviderMapping `json:"mappings"`
		}
		decode(t, w, &mappingsBody)
		assert.Len(t, mappingsBody.Mappings, 2)
	})
}

func TestAdminLogin(t *testing.T) {
	s := newServer(t, nil)

	hash, err := auth.HashPasswordArgon2("correct horse")
	require.NoError(t, err)
	require.NoError(t, s.store.CreateAdminUser(context.Background(), &models.AdminUser{
		Email:        "ops@example.com",
		PasswordHash: hash,
		Roles:        pq.StringArray{"admin"},
		Enabled:      true,
	}))

	t.Run("valid credentials", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{
			"email": "ops@example.com", "password": "correct horse",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp LoginResponse
		decode(t, w, &resp)
		claims, err := auth.ValidateAdminJWT(resp.Token, testJWTSecret)
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", claims.Email)
		assert.NotEmpty(t, resp.ExpiresAt)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{
			"email": "ops@example.com", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{
			"email": "nobody@example.com", "password": "whatever",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{"email": "ops@example.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminTopUp(t *testing.T) {
	s := newServer(t, nil)
	acct := s.account(t, "sk-dev")
	path := fmt.Sprintf("/admin/accounts/%d/credits", acct.ID)

	tests := []struct {
		name   string
		token  string
		path   string
		body   any
		status int
	}{
		{name: "no token", token: "", path: path, body: map[string]int{"amount": 10}, status: http.StatusUnauthorized},
		{name: "viewer role", token: s.adminToken(t, "viewer"), path: path, body: map[string]int{"amount": 10}, status: http.StatusForbidden},
		{name: "zero amount", token: s.adminToken(t, "admin"), path: path, body: map[string]int{"amount": 0}, status: http.StatusBadRequest},
		{name: "negative amount", token: s.adminToken(t, "admin"), path: path, body: map[string]int{"amount": -5}, status: http.StatusBadRequest},
		{name: "unknown account", token: s.adminToken(t, "admin"), path: "/admin/accounts/99999/credits", body: map[string]int{"amount": 10}, status: http.StatusNotFound},
		{name: "invalid account id", token: s.adminToken(t, "admin"), path: "/admin/accounts/abc/credits", body: map[string]int{"amount": 10}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	t.Run("credits the account", func(t *testing.T) {
		w := s.do(t, http.MethodPost, path, s.adminToken(t, "admin"), map[string]int{"amount": 25})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp TopUpResponse
		decode(t, w, &resp)
		assert.Equal(t, acct.ID, resp.AccountID)
		assert.Equal(t, int64(125), resp.Credits)
		assert.Equal(t, int64(125), s.account(t, "sk-dev").Credits)
	})
}

func TestAdminTopUp_RestoresAccess(t *testing.T) {
	s := newServer(t, nil)
	admin := s.adminToken(t, "admin")

	w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-broke", chatBody("gpt-4"))
	require.Equal(t, http.StatusForbidden, w.Code)

	p, err := s.store.GetAPIKeyByHash(context.Background(), auth.HashAPIKey("sk-broke"))
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/admin/accounts/%d/credits", p.AccountID), admin, map[string]int{"amount": 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-broke", chatBody("gpt-4"))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAdminUsage(t *testing.T) {
	s := newServer(t, nil)
	acct := s.account(t, "sk-dev")

	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	viewer := s.adminToken(t, "viewer")

	w := s.do(t, http.MethodGet, fmt.Sprintf("/admin/accounts/%d/usage?limit=2", acct.ID), viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccountID int64                `json:"account_id"`
		Usage     []models.UsageRecord `json:"usage"`
	}
	decode(t, w, &resp)
	assert.Equal(t, acct.ID, resp.AccountID)
	require.Len(t, resp.Usage, 2)
	for _, u := range resp.Usage {
		assert.Equal(t, int64(16), u.TotalCreditsConsumed)
		assert.Equal(t, int64(5), u.InputTokenCount)
		assert.Equal(t, int64(3), u.OutputTokenCount)
	}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/admin/accounts/%d/usage?limit=zero", acct.ID), viewer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/admin/accounts/99999/usage", viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCreateKey(t *testing.T) {
	s := newServer(t, nil)
	acct := s.account(t, "sk-dev")
	path := fmt.Sprintf("/admin/accounts/%d/keys", acct.ID)

	w := s.do(t, http.MethodPost, path, s.adminToken(t, "viewer"), map[string]string{"name": "ci"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, path, s.adminToken(t, "admin"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, path, s.adminToken(t, "admin"), map[string]string{"name": "ci"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID        int64  `json:"id"`
		AccountID int64  `json:"account_id"`
		Name      string `json:"name"`
		Key       string `json:"key"`
	}
	decode(t, w, &resp)
	assert.Equal(t, acct.ID, resp.AccountID)
	assert.Equal(t, "ci", resp.Name)
	assert.Contains(t, resp.Key, auth.APIKeyPrefix)
	assert.NotContains(t, w.Body.String(), auth.HashAPIKey(resp.Key))

	w = s.do(t, http.MethodPost, "/api/v1/chat/completions", resp.Key, chatBody("gpt-4"))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAdminAPIKeyLifecycle(t *testing.T) {
	s := newServer(t, nil)
	acct := s.account(t, "sk-dev")
	admin := s.adminToken(t, "admin")
	viewer := s.adminToken(t, "viewer")
	keys := fmt.Sprintf("/admin/accounts/%d/keys", acct.ID)

	w := s.do(t, http.MethodGet, keys, viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		AccountID int64           `json:"account_id"`
		Keys      []models.APIKey `json:"keys"`
	}
	decode(t, w, &list)
	require.Len(t, list.Keys, 1)
	assert.Equal(t, "dev", list.Keys[0].Name)
	assert.NotContains(t, w.Body.String(), auth.HashAPIKey("sk-dev"))

	key := fmt.Sprintf("%s/%d", keys, list.Keys[0].ID)

	w = s.do(t, http.MethodPatch, key, viewer, map[string]bool{"disabled": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, key, admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, key, admin, map[string]bool{"disabled": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated models.APIKey
	decode(t, w, &updated)
	assert.True(t, updated.Disabled)

	// a disabled key is rejected before any provider call
	w = s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, s.stub.Calls())
	assert.Equal(t, 0, s.store.UsageCount())

	w = s.do(t, http.MethodPatch, key, admin, map[string]bool{"disabled": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, s.stub.Calls())

	w = s.do(t, http.MethodDelete, key, admin, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, s.stub.Calls())

	w = s.do(t, http.MethodDelete, key, admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, keys, viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Empty(t, list.Keys)
}

func TestAdminAPIKey_OtherAccount(t *testing.T) {
	s := newServer(t, nil)
	dev := s.account(t, "sk-dev")
	brokeKey, err := s.store.GetAPIKeyByHash(context.Background(), auth.HashAPIKey("sk-broke"))
	require.NoError(t, err)

	path := fmt.Sprintf("/admin/accounts/%d/keys/%d", dev.ID, brokeKey.ID)
	w := s.do(t, http.MethodPatch, path, s.adminToken(t, "admin"), map[string]bool{"disabled": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/admin/accounts/%d/keys/abc", dev.ID), s.adminToken(t, "admin"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	key, err := s.store.GetAPIKey(context.Background(), brokeKey.ID)
	require.NoError(t, err)
	assert.True(t, key.IsUsable())
}

func TestAdminTopUps(t *testing.T) {
	s := newServer(t, nil)
	acct := s.account(t, "sk-dev")
	admin := s.adminToken(t, "admin")

	for _, amount := range []int{10, 20} {
		w := s.do(t, http.MethodPost, fmt.Sprintf("/admin/accounts/%d/credits", acct.ID), admin, map[string]int{"amount": amount})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := s.do(t, http.MethodGet, fmt.Sprintf("/admin/accounts/%d/topups?limit=1", acct.ID), s.adminToken(t, "viewer"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccountID int64                      `json:"account_id"`
		TopUps    []models.OnRampTransaction `json:"topups"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.TopUps, 1)
	assert.Equal(t, int64(20), resp.TopUps[0].Amount)
	assert.Equal(t, models.OnRampComplete, resp.TopUps[0].Status)

	w = s.do(t, http.MethodGet, "/admin/accounts/99999/topups", s.adminToken(t, "viewer"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCatalogInvalidate(t *testing.T) {
	s := newServer(t, nil, func(cfg *config.Config) { cfg.Router.SelectionPolicy = "round_robin" })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// add a second mapping behind the cache's back
	model, err := s.store.ModelBySlug(ctx, "gpt-4")
	require.NoError(t, err)
	providerList, err := s.store.ListProviders(ctx)
	require.NoError(t, err)
	var cohere *models.Provider
	for _, p := range providerList {
		if p.Name == "Cohere" {
			cohere = p
		}
	}
	require.NotNil(t, cohere)
	require.NoError(t, s.store.UpsertMapping(ctx, &models.ModelProviderMapping{ModelID: model.ID, ProviderID: cohere.ID, InputTokenCost: 1, OutputTokenCost: 1}))

	w := s.do(t, http.MethodPost, "/admin/catalog/invalidate", s.adminToken(t, "viewer"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/admin/catalog/invalidate", s.adminToken(t, "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// round robin now alternates between the OpenAI and Cohere mappings
	codes := map[int]int{}
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/chat/completions", "sk-dev", chatBody("gpt-4"))
		codes[w.Code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 1, http.StatusInternalServerError: 1}, codes)
	assert.Equal(t, 3, s.stub.Calls())
}

func TestHealth(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		s := newServer(t, nil)
		w := s.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("redis down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		redisClient, err := storage.NewRedisClient(storage.RedisConfig{Address: mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = redisClient.Close() })

		s := newServer(t, redisClient)
		mr.Close()

		w := s.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decode(t, w, &body)
		assert.Equal(t, "unavailable", body.Status)
		assert.Equal(t, "ok", body.Checks["database"])
		assert.NotEqual(t, "ok", body.Checks["redis"])
	})
}
