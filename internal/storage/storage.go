// Package storage persists the chunk metadata sequence, document records and build history.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage holds everything about a built index except the vectors themselves.
// Chunks are keyed by their insertion index in the vector index.
type Storage interface {
	ReplaceChunks(ctx context.Context, records []models.ChunkRecord) error
	ListChunks(ctx context.Context) ([]models.ChunkRecord, error)
	GetChunk(ctx context.Context, index int) (*models.ChunkRecord, error)

	ReplaceDocuments(ctx context.Context, docs []models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	RecordBuild(ctx context.Context, report *models.BuildReport) error
	// ReplaceIndex writes the chunks, the documents and the build record of one build
	// atomically.
	ReplaceIndex(ctx context.Context, records []models.ChunkRecord, docs []models.Document, report *models.BuildReport) error
	LastBuild(ctx context.Context) (*models.BuildReport, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
