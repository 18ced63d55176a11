package embedding

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long a query vector stays cached.
const DefaultCacheTTL = 30 * time.Minute

// CachedEmbedder memoizes embeddings by exact text. Retries of the same
// topic reuse the query vector instead of calling the model again.
type CachedEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

// NewCachedEmbedder wraps inner with an in-process TTL cache.
func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(text, vec)
	return vec, nil
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }
