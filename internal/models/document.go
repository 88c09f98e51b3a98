// Package models defines core data structures for documents, chunks, and answers.
package models

import (
	"fmt"
	"time"
)

// Document is a source file that was indexed, stored next to the vector index.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	Pages      []Page    `json:"pages" db:"pages"`
	WordCount  int       `json:"word_count" db:"word_count"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Page is one page (or slide, or sheet) of extracted text.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Chunk is a contiguous window of words from one source text.
// StartWord and EndWord are word offsets into the whitespace-tokenized source; EndWord is exclusive.
type Chunk struct {
	SourceID  string `json:"source_id"`
	Ordinal   int    `json:"ordinal"`
	StartWord int    `json:"start_word"`
	EndWord   int    `json:"end_word"`
	Text      string `json:"text"`
}

// ChunkRecord is the metadata stored alongside each vector in the index.
type ChunkRecord struct {
	Chunk
	Filename string `json:"filename"`
	ChunkID  string `json:"chunk_id"`
	Preview  string `json:"preview"`
}

// ChunkID formats the identifier of the ordinal-th chunk of filename.
func ChunkID(filename string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", filename, ordinal)
}

// DocumentInput is a document handed to the builder: either raw file bytes to extract,
// or already-extracted text.
type DocumentInput struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
	Text     string `json:"text,omitempty"`
}
