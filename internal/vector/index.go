// Package vector provides vector index and similarity search.
package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// VectorIndex stores embeddings with aligned chunk metadata and answers exact
// inner-product searches. Entries are append-only: insertion position is the identity
// of an entry and is never reused.
type VectorIndex interface {
	// Add appends vectors and their records. The whole batch is rejected on any mismatch.
	Add(ctx context.Context, vectors [][]float32, records []models.ChunkRecord) error
	// Search returns min(k, Size()) hits by descending score; ties go to the earlier entry.
	Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error)
	// Records returns the metadata sequence in insertion order.
	Records() []models.ChunkRecord
	Save(ctx context.Context, path string, meta MetadataStore) error
	// WriteVectors writes only the vector file to path. The metadata sequence is left
	// to the caller, which must store Records() alongside it.
	WriteVectors(path string) error
	Load(ctx context.Context, path string, meta MetadataStore) error
	// Dimensions is 0 until the first vector is added to an index created without one.
	Dimensions() int
	Size() int
	Type() string
	Close() error
}

// MetadataStore persists the metadata sequence aligned by insertion index.
type MetadataStore interface {
	ReplaceChunks(ctx context.Context, records []models.ChunkRecord) error
	ListChunks(ctx context.Context) ([]models.ChunkRecord, error)
}
