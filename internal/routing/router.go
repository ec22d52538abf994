// Package routing resolves a requested model to one serving provider mapping
// and the adapter that implements that provider.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llm_router/internal/apierr"
	"llm_router/internal/models"
	"llm_router/internal/providers"
	"llm_router/internal/storage"
)

// ModelRef is a parsed "hint/slug" model reference. The hint is
// informational only and never constrains provider selection.
type ModelRef struct {
	Hint string
	Slug string
}

// ParseModelRef reads ref as "hint/slug". Segments after the slug are
// ignored, so "a/b/c" routes slug "b". A reference without a slash is a
// bare slug.
func ParseModelRef(ref string) (ModelRef, error) {
	ref = strings.TrimSpace(ref)
	parts := strings.Split(ref, "/")
	hint, slug := "", parts[0]
	if len(parts) > 1 {
		hint, slug = parts[0], parts[1]
	}
	if slug == "" {
		return ModelRef{}, apierr.New(apierr.KindBadRequest, fmt.Sprintf("invalid model %q", ref))
	}
	return ModelRef{Hint: hint, Slug: slug}, nil
}

// Catalog is the read side of the model catalog used for routing
type Catalog interface {
	ModelBySlug(ctx context.Context, slug string) (*models.Model, error)
	MappingsForModel(ctx context.Context, modelID int64) ([]*models.ModelProviderMapping, error)
}

// Adapters resolves a provider name to its adapter
type Adapters interface {
	Lookup(providerName string) (providers.Adapter, error)
}

// Route is the outcome of routing one request
type Route struct {
	Model   *models.Model
	Mapping *models.ModelProviderMapping
	Adapter providers.Adapter
}

// Router picks a provider mapping for a model
type Router struct {
	catalog  Catalog
	adapters Adapters
	selector Selector
}

// NewRouter creates a router. A nil selector defaults to uniform random.
func NewRouter(catalog Catalog, adapters Adapters, selector Selector) *Router {
	if selector == nil {
		selector = NewRandomSelector(nil)
	}
	return &Router{catalog: catalog, adapters: adapters, selector: selector}
}

// Route resolves ref to a model, selects one of its mappings and finds the
// adapter for the mapping's provider.
func (r *Router) Route(ctx context.Context, ref ModelRef) (*Route, error) {
	model, err := r.catalog.ModelBySlug(ctx, ref.Slug)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			return nil, apierr.Wrap(apierr.KindModelNotFound, "model "+ref.Slug+" is not supported", err)
		}
		return nil, apierr.Wrap(apierr.KindInternal, "failed to resolve model", err)
	}

	mappings, err := r.catalog.MappingsForModel(ctx, model.ID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to load provider mappings", err)
	}
	if len(mappings) == 0 {
		return nil, apierr.New(apierr.KindNoProviderAvailable, "no providers available for model "+ref.Slug)
	}

	mapping := r.selector.Select(model.ID, mappings)

	adapter, err := r.adapters.Lookup(mapping.ProviderName)
	if err != nil {
		return nil, err
	}

	return &Route{Model: model, Mapping: mapping, Adapter: adapter}, nil
}
