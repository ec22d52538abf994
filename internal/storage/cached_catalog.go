package storage

import (
	"context"
	"time"

	"llm_router/internal/logging"
	"llm_router/internal/models"
)

// CatalogReader is the routing side of the catalog
type CatalogReader interface {
	ModelBySlug(ctx context.Context, slug string) (*models.Model, error)
	MappingsForModel(ctx context.Context, modelID int64) ([]*models.ModelProviderMapping, error)
}

// CachedCatalog memoizes slug and mapping lookups. Misses are not cached,
// so a model added to the catalog becomes routable on the next request.
type CachedCatalog struct {
	next     CatalogReader
	bySlug   *LRUCache[string, *models.Model]
	mappings *LRUCache[int64, []*models.ModelProviderMapping]
}

// NewCachedCatalog wraps next with LRU caches of the given size and TTL
func NewCachedCatalog(next CatalogReader, size int, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:     next,
		bySlug:   NewLRUCache[string, *models.Model](size, ttl),
		mappings: NewLRUCache[int64, []*models.ModelProviderMapping](size, ttl),
	}
}

func (c *CachedCatalog) ModelBySlug(ctx context.Context, slug string) (*models.Model, error) {
	if m, ok := c.bySlug.Get(slug); ok {
		return m, nil
	}

	m, err := c.next.ModelBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.bySlug.Set(slug, m)
	return m, nil
}

func (c *CachedCatalog) MappingsForModel(ctx context.Context, modelID int64) ([]*models.ModelProviderMapping, error) {
	if mps, ok := c.mappings.Get(modelID); ok {
		return mps, nil
	}

	mps, err := c.next.MappingsForModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if len(mps) > 0 {
		c.mappings.Set(modelID, mps)
	}
	return mps, nil
}

// Invalidate drops every cached entry
func (c *CachedCatalog) Invalidate() {
	c.bySlug.Clear()
	c.mappings.Clear()
}

// CleanupExpired removes expired entries from both caches
func (c *CachedCatalog) CleanupExpired() int {
	return c.bySlug.CleanupExpired() + c.mappings.CleanupExpired()
}

// StartCleanup runs CleanupExpired every interval until the returned stop
// function is called. stop waits for the loop to exit.
func (c *CachedCatalog) StartCleanup(interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.CleanupExpired(); n > 0 {
					logging.Debugf("catalog cache: removed %d expired entries", n)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
