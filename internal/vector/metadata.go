package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
)

// FileMetadataStore keeps the metadata sequence as a JSON array next to the vector file.
// It is used when no database is configured.
type FileMetadataStore struct {
	path string
}

// NewFileMetadataStore returns a store that reads and writes path.
func NewFileMetadataStore(path string) *FileMetadataStore {
	return &FileMetadataStore{path: path}
}

// ReplaceChunks overwrites the file with records.
func (s *FileMetadataStore) ReplaceChunks(ctx context.Context, records []models.ChunkRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// ListChunks reads the records back in insertion order.
func (s *FileMetadataStore) ListChunks(ctx context.Context) ([]models.ChunkRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", models.ErrNoIndexLoaded, s.path)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var records []models.ChunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return records, nil
}
