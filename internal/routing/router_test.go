package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm_router/internal/apierr"
	"llm_router/internal/models"
	"llm_router/internal/providers"
	"llm_router/internal/providers/providertest"
	"llm_router/internal/storage"
)

const catalogYAML = `
companies:
  - name: OpenAI
  - name: Anthropic
  - name: Mistral
providers:
  - name: OpenAI
  - name: Anthropic
  - name: Google
  - name: Cohere
models:
  - name: GPT-4
    slug: gpt-4
    company: OpenAI
    providers:
      - provider: OpenAI
  - name: Claude
    slug: claude-3-5-sonnet
    company: Anthropic
    providers:
      - provider: Anthropic
      - provider: Google
  - name: Orphan
    slug: orphan
    company: Mistral
  - name: Command
    slug: command-r
    company: Mistral
    providers:
      - provider: Cohere
`

func newCatalog(t *testing.T) *storage.MemoryStore {
	t.Helper()
	seed, err := storage.ParseSeed([]byte(catalogYAML))
	require.NoError(t, err)
	s := storage.NewMemoryStore()
	_, err = storage.ApplyCatalog(context.Background(), s, seed)
	require.NoError(t, err)
	return s
}

func newRegistry() *providers.Registry {
	return providers.NewRegistry(
		providertest.New(providers.NameOpenAI, "ok", 1, 1),
		providertest.New(providers.NameAnthropic, "ok", 1, 1),
		providertest.New(providers.NameGoogle, "ok", 1, 1),
	)
}

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		in      string
		want    ModelRef
		wantErr bool
	}{
		{in: "openai/gpt-4", want: ModelRef{Hint: "openai", Slug: "gpt-4"}},
		{in: "gpt-4", want: ModelRef{Slug: "gpt-4"}},
		{in: "meta/llama/3", want: ModelRef{Hint: "meta", Slug: "llama"}},
		{in: "/gpt-4", want: ModelRef{Slug: "gpt-4"}},
		{in: " anthropic/claude ", want: ModelRef{Hint: "anthropic", Slug: "claude"}},
		{in: "openai/", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModelRef(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apierr.ErrBadRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_Route(t *testing.T) {
	catalog := newCatalog(t)
	r := NewRouter(catalog, newRegistry(), NewRandomSelector(func(int) int { return 0 }))

	// the hint does not need to match the selected provider
	route, err := r.Route(context.Background(), ModelRef{Hint: "azure", Slug: "gpt-4"})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4", route.Model.Slug)
	assert.Equal(t, route.Model.ID, route.Mapping.ModelID)
	assert.Equal(t, providers.NameOpenAI, route.Adapter.Name())
}

func TestRouter_Route_Failures(t *testing.T) {
	catalog := newCatalog(t)
	r := NewRouter(catalog, newRegistry(), nil)

	_, err := r.Route(context.Background(), ModelRef{Slug: "does-not-exist"})
	assert.ErrorIs(t, err, apierr.ErrModelNotFound)

	_, err = r.Route(context.Background(), ModelRef{Slug: "orphan"})
	assert.ErrorIs(t, err, apierr.ErrNoProviderAvailable)

	_, err = r.Route(context.Background(), ModelRef{Slug: "command-r"})
	assert.ErrorIs(t, err, apierr.ErrProviderImplementationMissing)
}

func TestRouter_EveryMappingSelectable(t *testing.T) {
	catalog := newCatalog(t)
	model, err := catalog.ModelBySlug(context.Background(), "claude-3-5-sonnet")
	require.NoError(t, err)

	for _, sel := range []Selector{
		NewRandomSelector(nil),
		NewRoundRobinSelector(),
	} {
		r := NewRouter(catalog, newRegistry(), sel)
		seen := map[string]bool{}
		for i := 0; i < 200; i++ {
			route, err := r.Route(context.Background(), ModelRef{Slug: "claude-3-5-sonnet"})
			require.NoError(t, err)
			assert.Equal(t, model.ID, route.Mapping.ModelID)
			seen[route.Adapter.Name()] = true
		}
		assert.Len(t, seen, 2, "%T must reach every mapping", sel)
	}
}

func TestRandomSelector_UsesInjectedSource(t *testing.T) {
	mappings := []*models.ModelProviderMapping{{ID: 1}, {ID: 2}, {ID: 3}}
	var gotN int
	sel := NewRandomSelector(func(n int) int { gotN = n; return 2 })

	assert.Equal(t, int64(3), sel.Select(1, mappings).ID)
	assert.Equal(t, 3, gotN)
}

func TestRoundRobinSelector_PerModel(t *testing.T) {
	a := []*models.ModelProviderMapping{{ID: 1}, {ID: 2}}
	b := []*models.ModelProviderMapping{{ID: 10}, {ID: 11}, {ID: 12}}
	sel := NewRoundRobinSelector()

	assert.Equal(t, int64(1), sel.Select(1, a).ID)
	assert.Equal(t, int64(10), sel.Select(2, b).ID)
	assert.Equal(t, int64(2), sel.Select(1, a).ID)
	assert.Equal(t, int64(1), sel.Select(1, a).ID)
	assert.Equal(t, int64(11), sel.Select(2, b).ID)
}

func TestNewSelector(t *testing.T) {
	s, err := NewSelector("random")
	require.NoError(t, err)
	assert.IsType(t, &RandomSelector{}, s)

	s, err = NewSelector("round_robin")
	require.NoError(t, err)
	assert.IsType(t, &RoundRobinSelector{}, s)

	_, err = NewSelector("least_cost")
	assert.Error(t, err)
}
