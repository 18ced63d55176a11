package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/platform/cache"
)

const contextKeyPrefix = "qforge:ctx:"

// JSONCache is the subset of cache.Cache used for retrieval caching.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// ContextSource produces prompt context for a query.
type ContextSource interface {
	Retrieve(ctx context.Context, q Query) string
}

// CachedRetriever serves assembled context from Redis when possible.
// Empty results are not cached so newly ingested content shows up at once.
type CachedRetriever struct {
	inner ContextSource
	cache JSONCache
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedRetriever wraps inner with a cache.
func NewCachedRetriever(inner ContextSource, c JSONCache, ttl time.Duration, log *zap.Logger) *CachedRetriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedRetriever{inner: inner, cache: c, ttl: ttl, log: log}
}

// contextKey identifies a query's assembled context.
func contextKey(q Query) string {
	f := Filter{Subject: q.Subject, Topic: q.Topic, Subtopic: q.Subtopic}.Normalized()
	sum := sha256.Sum256([]byte(strings.Join([]string{f.Subject, f.Topic, f.Subtopic, f.Type, strconv.Itoa(q.MaxChunks)}, "\x00")))
	return contextKeyPrefix + q.Collection() + ":" + hex.EncodeToString(sum[:8])
}

func (c *CachedRetriever) Retrieve(ctx context.Context, q Query) string {
	key := contextKey(q)

	var text string
	err := c.cache.GetJSON(ctx, key, &text)
	switch {
	case err == nil:
		c.log.Debug("retrieval cache hit", zap.String("key", key))
		return text
	case !errors.Is(err, cache.ErrMiss):
		c.log.Warn("retrieval cache read failed", zap.String("key", key), zap.Error(err))
	}

	text = c.inner.Retrieve(ctx, q)
	if text == "" {
		return text
	}
	if err := c.cache.SetJSON(ctx, key, text, c.ttl); err != nil {
		c.log.Warn("retrieval cache write failed", zap.String("key", key), zap.Error(err))
	}
	return text
}

// Invalidate drops every cached context of collection.
func (c *CachedRetriever) Invalidate(ctx context.Context, collection string) (int, error) {
	return c.cache.DeletePrefix(ctx, contextKeyPrefix+collection+":")
}
