// Package fileid derives stable source IDs for indexed documents.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	filePrefix   = "file:"
	uploadPrefix = "upload:"
)

// SourceID returns a stable source ID for the file at path.
// The path is made absolute and cleaned first, so equivalent spellings share an ID.
func SourceID(path string) string {
	normalized := filepath.Clean(path)
	if abs, err := filepath.Abs(normalized); err == nil {
		normalized = abs
	}
	hash := sha256.Sum256([]byte(normalized))
	return filePrefix + hex.EncodeToString(hash[:])
}

// UploadID returns a fresh source ID for a document that has no path, such as an API upload.
func UploadID() string {
	return uploadPrefix + uuid.NewString()
}
