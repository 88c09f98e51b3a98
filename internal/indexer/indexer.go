package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Indexer builds a fresh vector index from a set of documents.
type Indexer struct {
	embedder     embedding.Embedder
	extractor    *extract.Extractor
	keywordIndex keyword.PassageIndex // optional
	chunker      *Chunker
	cfg          *config.Config
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for skip warnings and per-document debug events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithKeywordIndex makes every build also stage a keyword passage index. The caller
// commits it through BuildResult.Passages once the build is persisted.
func WithKeywordIndex(k keyword.PassageIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) {
		if e != nil {
			idx.extractor = e
		}
	}
}

// NewIndexer creates an indexer. The chunking settings are checked here so a bad
// configuration fails before any document is read.
func NewIndexer(embedder embedding.Embedder, cfg *config.Config, opts ...IndexerOption) (*Indexer, error) {
	if embedder == nil {
		return nil, models.InvalidConfigf("embedder is required")
	}
	chunker, err := NewChunker(cfg.Chunking.TargetWords, cfg.Chunking.OverlapWords)
	if err != nil {
		return nil, err
	}
	chunker.WithPreviewChars(cfg.Chunking.PreviewChars)
	idx := &Indexer{
		embedder:  embedder,
		extractor: extract.NewExtractor(),
		chunker:   chunker,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// BuildResult is the outcome of a successful build. The caller owns Index and
// must commit or discard Passages when it is set.
type BuildResult struct {
	Index     vector.VectorIndex
	Report    *models.BuildReport
	Documents []models.Document
	Passages  keyword.Staged
}

// Discard releases a build that will not be served.
func (r *BuildResult) Discard() {
	if r.Passages != nil {
		_ = r.Passages.Discard()
	}
	_ = r.Index.Close()
}

// Build extracts, chunks, embeds and indexes docs into a new index.
// Unsupported and empty documents are skipped and listed in the report; any other
// extraction failure aborts the build with a *models.SourceError.
func (idx *Indexer) Build(ctx context.Context, docs []models.DocumentInput) (*BuildResult, error) {
	started := time.Now()
	report := &models.BuildReport{
		BuildID:   uuid.NewString(),
		StartedAt: started.UTC(),
	}

	if err := checkUniqueIDs(docs); err != nil {
		return nil, err
	}
	prepared, err := idx.prepare(ctx, docs)
	if err != nil {
		return nil, err
	}

	var (
		records   []models.ChunkRecord
		documents []models.Document
	)
	for _, p := range prepared {
		if p.skipped != nil {
			report.Skipped = append(report.Skipped, *p.skipped)
			continue
		}
		records = append(records, p.records...)
		documents = append(documents, p.document)
	}
	report.Documents = len(documents)
	report.ChunksProduced = len(records)
	metrics.BuildChunksTotal.WithLabelValues("produced").Add(float64(len(records)))

	if idx.cfg.Build.DedupeOrDefault() {
		var dropped int
		records, dropped = Dedupe(records)
		report.DuplicatesFound = dropped
		metrics.BuildChunksTotal.WithLabelValues("duplicate").Add(float64(dropped))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced from %d documents", models.ErrEmptyIndex, len(docs))
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := embedding.EmbedInBatches(ctx, idx.embedder, texts, idx.cfg.Embedding.BatchSize)
	if err != nil {
		var be *embedding.BatchError
		if errors.As(err, &be) {
			return nil, fmt.Errorf("embed chunks from %s: %w", batchSources(records[be.Start:be.End]), err)
		}
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	index, err := vector.NewVectorIndex(idx.cfg.Vector.Type, 0)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := index.Add(ctx, vectors, records); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("add vectors: %w", err)
	}
	var passages keyword.Staged
	if idx.keywordIndex != nil {
		passages, err = idx.keywordIndex.Stage(ctx, records)
		if err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("keyword index: %w", err)
		}
	}

	report.ChunksIndexed = index.Size()
	report.Dimensions = index.Dimensions()
	report.Duration = time.Since(started)
	metrics.BuildChunksTotal.WithLabelValues("indexed").Add(float64(report.ChunksIndexed))

	idx.logger.Info("index built",
		zap.String("build_id", report.BuildID),
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.ChunksIndexed),
		zap.Int("duplicates", report.DuplicatesFound),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration),
	)
	return &BuildResult{Index: index, Report: report, Documents: documents, Passages: passages}, nil
}

// checkUniqueIDs rejects inputs that name the same document twice.
func checkUniqueIDs(docs []models.DocumentInput) error {
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			continue
		}
		if j, ok := seen[d.ID]; ok {
			return models.InvalidConfigf("documents %d and %d share id %q", j, i, d.ID)
		}
		seen[d.ID] = i
	}
	return nil
}

// batchSources names the documents behind a run of records, in order, without repeats.
func batchSources(records []models.ChunkRecord) string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.SourceID] {
			continue
		}
		seen[r.SourceID] = true
		names = append(names, fmt.Sprintf("%s (%s)", r.Filename, r.SourceID))
	}
	return strings.Join(names, ", ")
}

type preparedDoc struct {
	document models.Document
	records  []models.ChunkRecord
	skipped  *models.SkippedDocument
}

// prepare runs extraction and chunking on a bounded pool of workers.
// Results keep the order of docs.
func (idx *Indexer) prepare(ctx context.Context, docs []models.DocumentInput) ([]preparedDoc, error) {
	workers := idx.cfg.Build.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	workers = min(workers, len(docs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]preparedDoc, len(docs))
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p, err := idx.prepareOne(ctx, docs[i])
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				results[i] = p
			}
		}()
	}

feed:
	for i := range docs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (idx *Indexer) prepareOne(ctx context.Context, in models.DocumentInput) (preparedDoc, error) {
	if err := ctx.Err(); err != nil {
		return preparedDoc{}, err
	}
	id := in.ID
	if id == "" {
		id = fileid.UploadID()
	}

	var pages []models.Page
	if in.Text != "" {
		pages = []models.Page{{Number: 1, Text: extract.CleanText(in.Text)}}
	} else {
		ex, err := idx.extractor.ExtractBytes(in.Filename, in.Content)
		switch {
		case errors.Is(err, models.ErrUnsupportedFormat):
			return idx.skip(id, in.Filename, "unsupported_format", err), nil
		case err != nil:
			return preparedDoc{}, models.NewSourceError(id, in.Filename, err)
		}
		pages = ex.Pages
	}

	text := Preprocess(joinPages(pages))
	records := idx.chunker.Chunk(id, in.Filename, text)
	if len(records) == 0 {
		return idx.skip(id, in.Filename, "empty", models.ErrEmptyDocument), nil
	}

	idx.logger.Debug("document chunked",
		zap.String("source_id", id),
		zap.String("filename", in.Filename),
		zap.Int("chunks", len(records)),
	)
	return preparedDoc{
		document: models.Document{
			ID:         id,
			Filename:   in.Filename,
			Pages:      pages,
			WordCount:  records[len(records)-1].EndWord,
			ChunkCount: len(records),
			CreatedAt:  time.Now().UTC(),
		},
		records: records,
	}, nil
}

func (idx *Indexer) skip(id, filename, reason string, err error) preparedDoc {
	idx.logger.Warn("skipping document",
		zap.String("source_id", id),
		zap.String("filename", filename),
		zap.Error(err),
	)
	metrics.BuildSkippedDocumentsTotal.WithLabelValues(reason).Inc()
	return preparedDoc{skipped: &models.SkippedDocument{
		SourceID: id,
		Filename: filename,
		Reason:   err.Error(),
	}}
}

func joinPages(pages []models.Page) string {
	var n int
	for _, p := range pages {
		n += len(p.Text) + 1
	}
	buf := make([]byte, 0, n)
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}
