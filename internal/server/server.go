// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// loaded is the index currently being served.
type loaded struct {
	index vector.VectorIndex
}

// Server is the HTTP server for the Kotae API. It serves one index at a time and
// swaps it whole after a rebuild.
type Server struct {
	engine    *search.Engine
	indexer   *indexer.Indexer
	storage   storage.Storage
	keyword   keyword.PassageIndex
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
	current   atomic.Pointer[loaded]
	rebuildMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithKeywordIndex enables the passage lookup endpoint.
func WithKeywordIndex(k keyword.PassageIndex) Option {
	return func(s *Server) { s.keyword = k }
}

// NewServer creates a server with the given dependencies. No index is served until
// SetIndex or a rebuild.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		indexer: idx,
		storage: store,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetIndex replaces the served index. A nil index unloads it.
// Queries already running keep the index they started with.
func (s *Server) SetIndex(index vector.VectorIndex) {
	if index == nil {
		s.current.Store(nil)
		metrics.IndexEntries.Set(0)
		return
	}
	s.current.Store(&loaded{index: index})
	metrics.IndexEntries.Set(float64(index.Size()))
}

// Index returns the served index, or nil.
func (s *Server) Index() vector.VectorIndex {
	if l := s.current.Load(); l != nil {
		return l.index
	}
	return nil
}

// Rebuild builds a new index from docs, persists it and starts serving it.
// Only one rebuild runs at a time; the previous index and passages keep serving until
// the build is on disk.
func (s *Server) Rebuild(ctx context.Context, docs []models.DocumentInput) (*models.BuildReport, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	res, err := s.indexer.Build(ctx, docs)
	if err != nil {
		return nil, err
	}
	if err := Persist(ctx, s.config, s.storage, res); err != nil {
		res.Discard()
		return nil, err
	}
	s.SetIndex(res.Index)
	if res.Passages != nil {
		// the build is already on disk and served
		if err := res.Passages.Commit(); err != nil {
			s.logger.Error("passage index not updated",
				zap.String("build_id", res.Report.BuildID),
				zap.Error(err))
		}
	}
	return res.Report, nil
}

// RebuildFromSources rebuilds from the configured source paths.
func (s *Server) RebuildFromSources(ctx context.Context) (*models.BuildReport, error) {
	docs, err := indexer.LoadSources(&s.config.Sources)
	if err != nil {
		return nil, err
	}
	return s.Rebuild(ctx, docs)
}

// Persist writes a build to disk. The vectors go to a staging file first, then the
// chunk metadata, document records and build report are written in one transaction,
// and only then is the staging file renamed over the index path. A failure before the
// rename leaves the previous build intact on disk.
func Persist(ctx context.Context, cfg *config.Config, store storage.Storage, res *indexer.BuildResult) error {
	path := cfg.Storage.IndexPath
	staging := path + ".staging"
	if err := res.Index.WriteVectors(staging); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("save index: %w", err)
	}
	if err := store.ReplaceIndex(ctx, res.Index.Records(), res.Documents, res.Report); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("save index metadata: %w", err)
	}
	if err := os.Rename(staging, path); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("publish index file: %w", err)
	}
	return nil
}
