//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/hyperjump/kotae/internal/models"
)

// FAISSIndex keeps vectors in a FAISS IndexFlatIP (exact inner product) and the
// metadata sequence in Go. Results are re-ranked with the same tie-break as MemoryIndex.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	records    []models.ChunkRecord
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS index. A dimension of 0 defers creation to the first Add.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	f := &FAISSIndex{records: make([]models.ChunkRecord, 0)}
	if dimensions > 0 {
		if err := f.create(dimensions); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *FAISSIndex) create(dimensions int) error {
	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions)); ret != 0 {
		return fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	f.index = (*C.FaissIndex)(unsafe.Pointer(index))
	f.dimensions = dimensions
	return nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors with their records after validating the whole batch.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32, records []models.ChunkRecord) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: %d vectors for %d records", models.ErrDimensionMismatch, len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dim, err := batchDimensions(f.dimensions, vectors)
	if err != nil {
		return err
	}
	if f.index == nil {
		if err := f.create(dim); err != nil {
			return err
		}
	}

	n := len(vectors)
	flat := make([]float32, n*dim)
	for i, vec := range vectors {
		copy(flat[i*dim:(i+1)*dim], vec)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	f.records = append(f.records, records...)
	return nil
}

// Search scores every entry through FAISS, then applies the insertion-order tie-break.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := len(f.records)
	if ntotal == 0 || f.index == nil {
		return []models.SearchHit{}, nil
	}
	if k <= 0 {
		return nil, models.InvalidConfigf("top_k must be > 0, got %d", k)
	}
	if len(query) != f.dimensions {
		return nil, models.DimensionMismatch(len(query), f.dimensions)
	}

	// All entries are retrieved so that equal scores beyond k cannot displace earlier entries.
	distances := make([]float32, ntotal)
	labels := make([]int64, ntotal)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(ntotal),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	scores := make([]scored, 0, ntotal)
	for i, label := range labels {
		if label < 0 || int(label) >= ntotal {
			continue
		}
		scores = append(scores, scored{index: int(label), score: float64(distances[i])})
	}
	return collectHits(scores, k, f.records), nil
}

// Records returns a copy of the metadata sequence in insertion order.
func (f *FAISSIndex) Records() []models.ChunkRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.ChunkRecord, len(f.records))
	copy(out, f.records)
	return out
}

// Save writes the FAISS index to path and the metadata sequence to meta.
func (f *FAISSIndex) Save(ctx context.Context, path string, meta MetadataStore) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	if err := f.WriteVectors(path); err != nil {
		return err
	}
	if meta == nil {
		meta = NewFileMetadataStore(path + ".meta.json")
	}
	if err := meta.ReplaceChunks(ctx, f.Records()); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// WriteVectors writes the FAISS index file to path.
func (f *FAISSIndex) WriteVectors(path string) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return fmt.Errorf("%w: nothing to save", models.ErrEmptyIndex)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Load replaces the index with the snapshot at path and meta.
func (f *FAISSIndex) Load(ctx context.Context, path string, meta MetadataStore) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", models.ErrNoIndexLoaded, path)
		}
		return fmt.Errorf("stat index file: %w", err)
	}
	if meta == nil {
		meta = NewFileMetadataStore(path + ".meta.json")
	}
	records, err := meta.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	ntotal := int(C.faiss_Index_ntotal(loaded))
	if ntotal != len(records) {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("index snapshot is inconsistent: %d vectors, %d metadata records", ntotal, len(records))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	f.dimensions = int(C.faiss_Index_d(loaded))
	f.records = records
	return nil
}

// Dimensions returns the vector dimension, or 0 before the first Add.
func (f *FAISSIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

// Size returns the number of entries.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
