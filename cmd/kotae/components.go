package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Components holds initialized application components.
type Components struct {
	Storage   *storage.SQLiteStorage
	Embedder  embedding.Embedder
	Generator generation.Generator
	Keyword   *keyword.BleveIndex // nil unless keyword.enabled
	Engine    *search.Engine
	Indexer   *indexer.Indexer
	redis     *embedding.RedisStore
}

// Close releases all components.
func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	if cfg.Vector.Type == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS not available, falling back to memory index")
		cfg.Vector.Type = string(vector.IndexTypeMemory)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	inner, err := newEmbedder(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Embedder, c.redis, err = withCache(inner, cfg, logger)
	if err != nil {
		_ = inner.Close()
		c.Close()
		return nil, err
	}

	c.Generator, err = newGenerator(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Keyword.Enabled {
		c.Keyword, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
	}

	c.Engine = search.NewEngine(c.Embedder, c.Generator, &cfg.Retrieval, search.WithLogger(logger))

	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if c.Keyword != nil {
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(c.Keyword))
	}
	c.Indexer, err = indexer.NewIndexer(c.Embedder, cfg, idxOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	logger.Debug("components initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.String("vector_type", cfg.Vector.Type),
		zap.Bool("keyword", cfg.Keyword.Enabled),
		zap.Bool("debug", debug))
	return c, nil
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "mock":
		return embedding.NewMockEmbedder(ec.Dimensions), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(&embedding.OpenAIConfig{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   "openai",
			Logger:     logger,
		}), nil
	case "onnx":
		e, err := embedding.NewONNXEmbedder(&embedding.ONNXConfig{
			ModelPath:   ec.ModelPath,
			VocabPath:   ec.VocabPath,
			Dimensions:  ec.Dimensions,
			MaxTokens:   ec.MaxTokens,
			LibraryPath: ec.LibraryPath,
			Logger:      logger,
		})
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using mock embeddings",
				zap.String("model_path", ec.ModelPath), zap.Error(err))
			return embedding.NewMockEmbedder(ec.Dimensions), nil
		}
		return e, nil
	}
	return nil, models.InvalidConfigf("unknown embedding provider %q", ec.Provider)
}

// withCache wraps inner with the in-process LRU and, when configured, the shared Redis cache.
func withCache(inner embedding.Embedder, cfg *config.Config, logger *zap.Logger) (embedding.Embedder, *embedding.RedisStore, error) {
	ec := cfg.Embedding
	var opts []embedding.CachedOption
	if ec.CacheSize > 0 {
		opts = append(opts, embedding.WithStore("lru", embedding.NewEmbeddingCache(ec.CacheSize)))
	}
	var redis *embedding.RedisStore
	if ec.Redis.Enabled() {
		var err error
		redis, err = embedding.NewRedisStore(embedding.RedisConfig{
			Addrs:    ec.Redis.Addrs,
			Username: ec.Redis.Username,
			Password: ec.Redis.Password,
			DB:       ec.Redis.DB,
			TTL:      ec.Redis.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect embedding cache: %w", err)
		}
		opts = append(opts, embedding.WithStore("redis", redis))
	}
	if len(opts) == 0 {
		return inner, nil, nil
	}
	opts = append(opts, embedding.WithCacheLogger(logger))
	return embedding.NewCachedEmbedder(inner, cacheModelKey(cfg), opts...), redis, nil
}

// cacheModelKey identifies the embedding model in cache keys.
func cacheModelKey(cfg *config.Config) string {
	ec := cfg.Embedding
	switch {
	case ec.Model != "":
		return fmt.Sprintf("%s/%s/%d", ec.Provider, ec.Model, ec.Dimensions)
	case ec.ModelPath != "":
		return fmt.Sprintf("%s/%s/%d", ec.Provider, ec.ModelPath, ec.Dimensions)
	}
	return fmt.Sprintf("%s/%d", ec.Provider, ec.Dimensions)
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (generation.Generator, error) {
	gc := cfg.Generation
	switch gc.Provider {
	case "none", "":
		return nil, nil
	case "static":
		return generation.StaticGenerator{Text: gc.StaticAnswer}, nil
	case "openai":
		return generation.NewOpenAIGenerator(&generation.OpenAIConfig{
			APIKey:    gc.APIKey,
			BaseURL:   gc.BaseURL,
			Model:     gc.Model,
			MaxTokens: gc.MaxTokens,
			Logger:    logger,
		}), nil
	}
	return nil, models.InvalidConfigf("unknown generation provider %q", gc.Provider)
}

// loadIndex opens the persisted index, or returns nil when none has been built yet.
func loadIndex(ctx context.Context, cfg *config.Config, store vector.MetadataStore) (vector.VectorIndex, error) {
	idx, err := vector.NewVectorIndex(cfg.Vector.Type, 0)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(ctx, cfg.Storage.IndexPath, store); err != nil {
		_ = idx.Close()
		if errors.Is(err, models.ErrNoIndexLoaded) {
			return nil, nil
		}
		return nil, fmt.Errorf("load index: %w", err)
	}
	return idx, nil
}
