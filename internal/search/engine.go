// Package search answers questions from a vector index: retrieval, context assembly,
// and grounded generation.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Engine runs the query flow against whichever index it is handed.
type Engine struct {
	embedder  embedding.Embedder
	generator generation.Generator
	config    *config.RetrievalConfig
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine. A nil generator makes every grounded answer extractive.
func NewEngine(embedder embedding.Embedder, generator generation.Generator, cfg *config.RetrievalConfig, opts ...Option) *Engine {
	e := &Engine{
		embedder:  embedder,
		generator: generator,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve embeds query and returns the top-k hits from idx.
func (e *Engine) Retrieve(ctx context.Context, idx vector.VectorIndex, query string, topK int) ([]models.SearchHit, error) {
	if idx == nil {
		return nil, models.ErrNoIndexLoaded
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := idx.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

// Answer retrieves contexts for req and produces an answer. When no context passes
// the score threshold the configured fallback is returned and generation is not invoked.
func (e *Engine) Answer(ctx context.Context, idx vector.VectorIndex, req models.QueryRequest) (*models.Answer, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	topK, minScore, maxContexts, useGeneration := e.resolve(req)

	hits, err := e.Retrieve(ctx, idx, req.Query, topK)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", req.Query, err)
	}
	contexts := Assemble(hits, minScore, maxContexts, e.config.MaxCharsPerContext)

	answer := &models.Answer{
		Query:    req.Query,
		Contexts: contexts,
		Hits:     hits,
	}
	switch {
	case len(contexts) == 0:
		answer.Mode = models.AnswerFallback
		answer.Text = e.config.FallbackAnswer
	case !useGeneration || e.generator == nil:
		answer.Mode = models.AnswerExtractive
		answer.Text = ExtractiveAnswer(contexts, e.config.ExtractiveContexts)
	default:
		out, err := e.generator.Generate(ctx, BuildPrompt(req.Query, contexts))
		if err != nil {
			return nil, fmt.Errorf("query %q: generate: %w", req.Query, err)
		}
		answer.Mode = models.AnswerGenerated
		answer.Text = utils.CollapseWhitespace(out)
		if answer.Text == "" {
			answer.Mode = models.AnswerFallback
			answer.Text = e.config.FallbackAnswer
		}
	}
	answer.QueryTime = time.Since(start).Milliseconds()

	metrics.AnswersTotal.WithLabelValues(string(answer.Mode)).Inc()
	e.logger.Info("Answered query",
		zap.String("mode", string(answer.Mode)),
		zap.Int("hits", len(hits)),
		zap.Int("contexts", len(contexts)),
		zap.Int64("query_time_ms", answer.QueryTime))
	return answer, nil
}

func (e *Engine) resolve(req models.QueryRequest) (topK int, minScore float64, maxContexts int, useGeneration bool) {
	topK = e.config.TopK
	if req.TopK > 0 {
		topK = req.TopK
	}
	minScore = e.config.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	maxContexts = e.config.MaxContexts
	if req.MaxContexts > 0 {
		maxContexts = req.MaxContexts
	}
	useGeneration = e.config.GenerationEnabled()
	if req.UseGeneration != nil {
		useGeneration = *req.UseGeneration
	}
	return topK, minScore, maxContexts, useGeneration
}
