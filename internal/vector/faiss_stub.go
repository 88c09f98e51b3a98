//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, errFAISSUnavailable
}

// Add is not implemented without FAISS.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32, records []models.ChunkRecord) error {
	return errFAISSUnavailable
}

// Search is not implemented without FAISS.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error) {
	return nil, errFAISSUnavailable
}

// Records returns nil without FAISS.
func (f *FAISSIndex) Records() []models.ChunkRecord { return nil }

// Save is not implemented without FAISS.
func (f *FAISSIndex) Save(ctx context.Context, path string, meta MetadataStore) error {
	return errFAISSUnavailable
}

// WriteVectors is not implemented without FAISS.
func (f *FAISSIndex) WriteVectors(path string) error {
	return errFAISSUnavailable
}

// Load is not implemented without FAISS.
func (f *FAISSIndex) Load(ctx context.Context, path string, meta MetadataStore) error {
	return errFAISSUnavailable
}

// Dimensions returns 0 without FAISS.
func (f *FAISSIndex) Dimensions() int { return 0 }

// Size returns 0 without FAISS.
func (f *FAISSIndex) Size() int { return 0 }

// Close is a no-op without FAISS.
func (f *FAISSIndex) Close() error { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
