// Package keyword provides full-text passage lookup over the indexed chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FilenameBoost multiplies the score contribution from matches in the filename.
	// Values <= 1 search the text only.
	FilenameBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default is 1 when fuzzy is enabled.
	Fuzziness int
}

// PassageIndex indexes chunk records for keyword lookup.
type PassageIndex interface {
	// Stage indexes records, keyed by insertion index, into a new index. The served
	// passages do not change until the returned Staged is committed.
	Stage(ctx context.Context, records []models.ChunkRecord) (Staged, error)
	// Rebuild stages records and commits them.
	Rebuild(ctx context.Context, records []models.ChunkRecord) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Passage, error)
	DocCount() (uint64, error)
	Close() error
}

// Staged is a passage index built but not yet served. Exactly one of Commit or
// Discard must be called.
type Staged interface {
	Commit() error
	Discard() error
}

// Passage is a single keyword search hit.
type Passage struct {
	Index    int     `json:"index"`
	ChunkID  string  `json:"chunk_id"`
	Filename string  `json:"filename"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}
