package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hyperjump/kotae/internal/models"
)

// Validate checks cross-field constraints. All problems are reported together,
// wrapped in models.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be in 1..65535, got %d", c.Server.Port)
	check(c.Chunking.TargetWords > 0, "chunking.target_words must be > 0, got %d", c.Chunking.TargetWords)
	check(c.Chunking.OverlapWords >= 0, "chunking.overlap_words must be >= 0, got %d", c.Chunking.OverlapWords)
	check(c.Chunking.OverlapWords < c.Chunking.TargetWords,
		"chunking.overlap_words (%d) must be < target_words (%d)", c.Chunking.OverlapWords, c.Chunking.TargetWords)
	check(c.Embedding.BatchSize > 0, "embedding.batch_size must be > 0, got %d", c.Embedding.BatchSize)
	check(slices.Contains([]string{"mock", "onnx", "openai"}, c.Embedding.Provider),
		"embedding.provider must be mock, onnx or openai, got %q", c.Embedding.Provider)
	check(c.Embedding.Dimensions >= 0, "embedding.dimensions must be >= 0, got %d", c.Embedding.Dimensions)
	check(c.Embedding.Provider == "openai" || c.Embedding.Dimensions > 0,
		"embedding.dimensions is required for provider %q", c.Embedding.Provider)
	check(slices.Contains([]string{"memory", "faiss"}, c.Vector.Type),
		"vector.type must be memory or faiss, got %q", c.Vector.Type)
	check(c.Retrieval.TopK > 0, "retrieval.top_k must be > 0, got %d", c.Retrieval.TopK)
	check(c.Retrieval.MaxContexts > 0, "retrieval.max_contexts must be > 0, got %d", c.Retrieval.MaxContexts)
	check(c.Retrieval.MaxCharsPerContext > 0,
		"retrieval.max_chars_per_context must be > 0, got %d", c.Retrieval.MaxCharsPerContext)
	check(c.Retrieval.ExtractiveContexts > 0,
		"retrieval.extractive_contexts must be > 0, got %d", c.Retrieval.ExtractiveContexts)
	check(slices.Contains([]string{"openai", "static", "none"}, c.Generation.Provider),
		"generation.provider must be openai, static or none, got %q", c.Generation.Provider)
	check(c.Build.Workers > 0, "build.workers must be > 0, got %d", c.Build.Workers)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", models.ErrInvalidConfig, errors.Join(errs...))
}
