package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force inner product search.
// Search is exact and deterministic: O(N*D) per query.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
	records    []models.ChunkRecord
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index. A dimension of 0 is set by the first Add.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
		records:    make([]models.ChunkRecord, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add appends vectors with their records. Every vector is checked before anything is stored.
func (m *MemoryIndex) Add(ctx context.Context, vectors [][]float32, records []models.ChunkRecord) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: %d vectors for %d records", models.ErrDimensionMismatch, len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dim, err := batchDimensions(m.dimensions, vectors)
	if err != nil {
		return err
	}
	m.dimensions = dim
	for i, v := range vectors {
		vec := make([]float32, dim)
		copy(vec, v)
		m.vectors = append(m.vectors, vec)
		m.records = append(m.records, records[i])
	}
	return nil
}

// batchDimensions returns the dimension every vector in the batch must have.
func batchDimensions(current int, vectors [][]float32) (int, error) {
	dim := current
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return 0, fmt.Errorf("%w: empty vector", models.ErrDimensionMismatch)
		}
	}
	for _, v := range vectors {
		if len(v) != dim {
			return 0, models.DimensionMismatch(len(v), dim)
		}
	}
	return dim, nil
}

// Search returns the top-k entries by inner product (cosine similarity for unit vectors).
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.vectors) == 0 {
		return []models.SearchHit{}, nil
	}
	if k <= 0 {
		return nil, models.InvalidConfigf("top_k must be > 0, got %d", k)
	}
	if len(query) != m.dimensions {
		return nil, models.DimensionMismatch(len(query), m.dimensions)
	}
	scores := make([]scored, len(m.vectors))
	for i, vec := range m.vectors {
		scores[i] = scored{index: i, score: InnerProduct(query, vec)}
	}
	return collectHits(scores, k, m.records), nil
}

// Records returns a copy of the metadata sequence in insertion order.
func (m *MemoryIndex) Records() []models.ChunkRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ChunkRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Save writes the vectors to path and the metadata sequence to meta.
// Vector file format: dimension (uint32), n (uint32), then n*dimension float32 bit patterns,
// all little-endian. The file is written to a temporary name and renamed into place.
func (m *MemoryIndex) Save(ctx context.Context, path string, meta MetadataStore) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	if err := m.WriteVectors(path); err != nil {
		return err
	}
	if meta == nil {
		meta = NewFileMetadataStore(path + ".meta.json")
	}
	if err := meta.ReplaceChunks(ctx, m.Records()); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// WriteVectors writes the vector file to path.
func (m *MemoryIndex) WriteVectors(path string) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeVectorFile(path, m.dimensions, m.vectors)
}

// Load replaces the index contents with the snapshot at path and meta.
// A missing vector file yields ErrNoIndexLoaded and leaves the index unchanged.
func (m *MemoryIndex) Load(ctx context.Context, path string, meta MetadataStore) error {
	dim, vectors, err := readVectorFile(path)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = NewFileMetadataStore(path + ".meta.json")
	}
	records, err := meta.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("index snapshot is inconsistent: %d vectors, %d metadata records", len(vectors), len(records))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && len(vectors) > 0 && dim != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", models.ErrDimensionMismatch, dim, m.dimensions)
	}
	if len(vectors) > 0 {
		m.dimensions = dim
	}
	m.vectors = vectors
	m.records = records
	return nil
}

func writeVectorFile(path string, dim int, vectors [][]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	err = writeVectors(w, dim, vectors)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func writeVectors(w io.Writer, dim int, vectors [][]float32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range vectors {
		if _, err := w.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

func readVectorFile(path string) (int, [][]float32, error) {
	if path == "" {
		return 0, nil, fmt.Errorf("%w: index path is empty", models.ErrNoIndexLoaded)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil, fmt.Errorf("%w: %s does not exist", models.ErrNoIndexLoaded, path)
		}
		return 0, nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	return readVectors(bufio.NewReader(f))
}

func readVectors(r io.Reader) (int, [][]float32, error) {
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return 0, nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, nil, fmt.Errorf("read count: %w", err)
	}
	if n > 0 && dim == 0 {
		return 0, nil, fmt.Errorf("index file has %d vectors of dimension 0", n)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return int(dim), vectors, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Dimensions returns the vector dimension, or 0 if it has not been set yet.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
