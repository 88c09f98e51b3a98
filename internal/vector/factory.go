package vector

import "github.com/hyperjump/kotae/internal/models"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS flat inner-product index (still exact).
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an empty index of the given type ("memory" when empty).
// A dimension of 0 is fixed by the first non-empty Add or by Load.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	if dimensions < 0 {
		return nil, models.InvalidConfigf("vector dimensions must be >= 0, got %d", dimensions)
	}
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		// avoid handing back a non-nil interface around a nil *FAISSIndex
		idx, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, models.InvalidConfigf("unknown vector index type %q (supported: memory, faiss)", indexType)
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
