package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/metrics"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by a Store that has no value for a key.
var ErrCacheMiss = errors.New("embedding cache miss")

// Store is a cache backend for embeddings.
type Store interface {
	Load(ctx context.Context, key string) ([]float32, error)
	Save(ctx context.Context, key string, value []float32) error
}

// namedStore pairs a store with its metrics label.
type namedStore struct {
	name  string
	store Store
}

// CachedEmbedder consults its stores in order before calling the inner embedder.
// Values found in a later store are written back to the earlier ones.
// Store failures are logged and treated as misses.
type CachedEmbedder struct {
	inner  Embedder
	model  string
	stores []namedStore
	logger *zap.Logger
}

// CachedOption configures a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithStore appends a cache tier; name labels its hit/miss metrics.
func WithStore(name string, s Store) CachedOption {
	return func(c *CachedEmbedder) {
		if s != nil {
			c.stores = append(c.stores, namedStore{name: name, store: s})
		}
	}
}

// WithCacheLogger sets the logger for store failures.
func WithCacheLogger(logger *zap.Logger) CachedOption {
	return func(c *CachedEmbedder) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCachedEmbedder wraps inner. model namespaces cache keys so different models never share vectors.
func NewCachedEmbedder(inner Embedder, model string, opts ...CachedOption) *CachedEmbedder {
	c := &CachedEmbedder{inner: inner, model: model, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns a cached embedding or calls the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	c.fill(ctx, len(c.stores), key, vec)
	return vec, nil
}

// EmbedBatch serves hits from the cache and embeds all misses with a single inner batch call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.fill(ctx, len(c.stores), keys[i], vecs[j])
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "kotae:emb:" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	for i, s := range c.stores {
		vec, err := s.store.Load(ctx, key)
		if err == nil && len(vec) > 0 {
			metrics.EmbeddingCacheTotal.WithLabelValues(s.name, "hit").Inc()
			c.fill(ctx, i, key, vec)
			return vec, true
		}
		metrics.EmbeddingCacheTotal.WithLabelValues(s.name, "miss").Inc()
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("Failed to get cached embedding", zap.String("store", s.name), zap.Error(err))
		}
	}
	return nil, false
}

// fill writes vec to the first n stores.
func (c *CachedEmbedder) fill(ctx context.Context, n int, key string, vec []float32) {
	for _, s := range c.stores[:n] {
		if err := s.store.Save(ctx, key, vec); err != nil {
			c.logger.Warn("Failed to cache embedding", zap.String("store", s.name), zap.Error(err))
		}
	}
}
