package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder memoises vectors for repeated texts (greetings, stock
// questions) so a retry storm does not re-bill the embedding model.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.Cache
}

// NewCachedEmbedder wraps inner with an expiring in-process cache.
func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	if inner == nil {
		panic("llm: embedder cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedEmbedder{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return cloneVector(v.([]float32)), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, cloneVector(vec))
	return vec, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(text))))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
