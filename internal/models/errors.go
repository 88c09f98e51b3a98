package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig signals chunking or retrieval parameters that cannot work.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnsupportedFormat signals a file type the extractor does not handle.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptyDocument signals a document that produced no chunks.
	ErrEmptyDocument = errors.New("empty document")
	// ErrDimensionMismatch signals vectors whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyIndex signals a build that produced zero chunks.
	ErrEmptyIndex = errors.New("empty index")
	// ErrNoIndexLoaded signals a query issued before any index was built or loaded.
	ErrNoIndexLoaded = errors.New("no index loaded")
)

// SourceError attaches the originating document to a failure.
type SourceError struct {
	SourceID string
	Filename string
	Err      error
}

func (e *SourceError) Error() string {
	name := e.Filename
	if name == "" {
		name = e.SourceID
	}
	return fmt.Sprintf("document %q: %v", name, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError wraps err with the document it came from.
func NewSourceError(sourceID, filename string, err error) error {
	return &SourceError{SourceID: sourceID, Filename: filename, Err: err}
}

// InvalidConfigf returns an error wrapping ErrInvalidConfig with a formatted reason.
func InvalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// DimensionMismatch returns an error wrapping ErrDimensionMismatch.
func DimensionMismatch(got, want int) error {
	return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, got, want)
}
