package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kotae/internal/models"
)

// chunkDoc is the document shape stored in Bleve for each chunk.
type chunkDoc struct {
	ChunkID  string `json:"chunk_id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// BleveIndex implements PassageIndex using Bleve.
type BleveIndex struct {
	path  string
	index bleve.Index
	mu    sync.RWMutex
}

func passageMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// standard analyzer (lowercase + tokenize, no stemming) so exact words match
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("filename", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("chunk_id", keywordFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path != "" {
		recoverPrevious(path)
	}
	index, err := openIndex(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{path: path, index: index}, nil
}

func openIndex(path string) (bleve.Index, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(passageMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return index, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return index, nil
	}
	index, err := bleve.New(path, passageMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

// recoverPrevious puts the previous index back when a commit stopped between moving
// it aside and moving the staged one in.
func recoverPrevious(path string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	if _, err := os.Stat(path + prevSuffix); err == nil {
		_ = os.Rename(path+prevSuffix, path)
	}
}

const (
	stagingSuffix = ".next"
	prevSuffix    = ".prev"
)

// Rebuild replaces every indexed passage with records.
func (b *BleveIndex) Rebuild(ctx context.Context, records []models.ChunkRecord) error {
	staged, err := b.Stage(ctx, records)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// Stage indexes records in one batch into a fresh index next to the served one,
// or in memory when the index has no path.
func (b *BleveIndex) Stage(ctx context.Context, records []models.ChunkRecord) (Staged, error) {
	var dir string
	if b.path != "" {
		dir = b.path + stagingSuffix
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear staging index: %w", err)
		}
	}
	index, err := openIndex(dir)
	if err != nil {
		return nil, err
	}
	st := &bleveStaged{owner: b, index: index, dir: dir}

	batch := index.NewBatch()
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			_ = st.Discard()
			return nil, err
		}
		doc := chunkDoc{ChunkID: r.ChunkID, Filename: r.Filename, Text: r.Text}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			_ = st.Discard()
			return nil, fmt.Errorf("failed to index chunk %d: %w", i, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = st.Discard()
		return nil, fmt.Errorf("failed to write Bleve batch: %w", err)
	}
	return st, nil
}

type bleveStaged struct {
	owner *BleveIndex
	index bleve.Index
	dir   string
	done  bool
}

// Commit swaps the staged index in. On disk the served directory is moved aside,
// the staged one moved into its place and reopened; any failure restores the
// previous index.
func (s *bleveStaged) Commit() error {
	if s.done {
		return fmt.Errorf("staged passages already committed or discarded")
	}
	s.done = true
	b := s.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.dir == "" {
		old := b.index
		b.index = s.index
		return old.Close()
	}

	if err := s.index.Close(); err != nil {
		_ = os.RemoveAll(s.dir)
		return fmt.Errorf("failed to close staged Bleve index: %w", err)
	}
	if err := b.index.Close(); err != nil {
		_ = os.RemoveAll(s.dir)
		b.reopen()
		return fmt.Errorf("failed to close Bleve index: %w", err)
	}
	prev := b.path + prevSuffix
	if err := os.RemoveAll(prev); err != nil {
		_ = os.RemoveAll(s.dir)
		b.reopen()
		return fmt.Errorf("failed to clear previous Bleve index: %w", err)
	}
	hadPrev := true
	if err := os.Rename(b.path, prev); err != nil {
		if !os.IsNotExist(err) {
			_ = os.RemoveAll(s.dir)
			b.reopen()
			return fmt.Errorf("failed to move Bleve index aside: %w", err)
		}
		hadPrev = false
	}
	restore := func() {
		_ = os.RemoveAll(b.path)
		if hadPrev {
			_ = os.Rename(prev, b.path)
		}
		b.reopen()
	}
	if err := os.Rename(s.dir, b.path); err != nil {
		_ = os.RemoveAll(s.dir)
		restore()
		return fmt.Errorf("failed to move staged Bleve index: %w", err)
	}
	index, err := bleve.Open(b.path)
	if err != nil {
		restore()
		return fmt.Errorf("failed to open Bleve index: %w", err)
	}
	b.index = index
	_ = os.RemoveAll(prev)
	return nil
}

// Discard drops the staged index.
func (s *bleveStaged) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.index.Close()
	if s.dir != "" {
		if rmErr := os.RemoveAll(s.dir); err == nil {
			err = rmErr
		}
	}
	return err
}

// reopen opens b.path after a failed commit. Callers hold b.mu. If even that fails,
// searches run against an empty in-memory index until the next commit.
func (b *BleveIndex) reopen() {
	index, err := openIndex(b.path)
	if err != nil {
		index, _ = openIndex("")
	}
	b.index = index
}

// Search runs a match query over chunk text and returns up to limit passages.
// With FilenameBoost > 1, filename and text scores are added with the filename weighted.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Passage, error) {
	if limit <= 0 {
		limit = 10
	}
	filenameBoost := 1.0
	fuzziness := 0
	if opts != nil {
		if opts.FilenameBoost > 0 {
			filenameBoost = opts.FilenameBoost
		}
		if opts.FuzzyEnabled {
			fuzziness = 1
			if opts.Fuzziness > 0 {
				fuzziness = opts.Fuzziness
			}
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	textHits, err := b.search(buildQuery(query, "text", fuzziness), limit*2)
	if err != nil {
		return nil, fmt.Errorf("Bleve text search failed: %w", err)
	}
	scores := make(map[string]float64, len(textHits))
	fields := make(map[string]map[string]interface{}, len(textHits))
	for _, hit := range textHits {
		scores[hit.id] = hit.score
		fields[hit.id] = hit.fields
	}

	if filenameBoost > 1.0 {
		nameHits, err := b.search(buildQuery(query, "filename", fuzziness), limit*2)
		if err != nil {
			return nil, fmt.Errorf("Bleve filename search failed: %w", err)
		}
		for _, hit := range nameHits {
			scores[hit.id] += hit.score * filenameBoost
			if _, ok := fields[hit.id]; !ok {
				fields[hit.id] = hit.fields
			}
		}
	}

	out := make([]*Passage, 0, len(scores))
	for id, score := range scores {
		idx, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		f := fields[id]
		out = append(out, &Passage{
			Index:    idx,
			ChunkID:  stringField(f, "chunk_id"),
			Filename: stringField(f, "filename"),
			Text:     stringField(f, "text"),
			Score:    score,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type rawHit struct {
	id     string
	score  float64
	fields map[string]interface{}
}

func (b *BleveIndex) search(q blevequery.Query, size int) ([]rawHit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{"chunk_id", "filename", "text"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]rawHit, len(results.Hits))
	for i, hit := range results.Hits {
		hits[i] = rawHit{id: hit.ID, score: hit.Score, fields: hit.Fields}
	}
	return hits, nil
}

// buildQuery matches query against field; with fuzziness > 0 each term is a fuzzy disjunct.
func buildQuery(queryStr, field string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if fuzziness <= 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// DocCount returns the number of indexed passages.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
