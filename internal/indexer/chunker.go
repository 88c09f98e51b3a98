// Package indexer provides document chunking and index building.
package indexer

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// DefaultPreviewChars bounds the preview stored with each chunk.
const DefaultPreviewChars = 1500

// Window is a span of words [StartWord, EndWord) and its text joined by single spaces.
type Window struct {
	StartWord int
	EndWord   int
	Text      string
}

// ChunkText splits text into overlapping word windows of targetWords words, advancing
// by targetWords-overlapWords each time. Empty text yields no windows.
func ChunkText(text string, targetWords, overlapWords int) ([]Window, error) {
	step, err := windowStep(targetWords, overlapWords)
	if err != nil {
		return nil, err
	}
	return windows(strings.Fields(text), targetWords, step), nil
}

func windowStep(targetWords, overlapWords int) (int, error) {
	if targetWords <= 0 {
		return 0, models.InvalidConfigf("target_words must be > 0, got %d", targetWords)
	}
	if overlapWords < 0 {
		return 0, models.InvalidConfigf("overlap_words must be >= 0, got %d", overlapWords)
	}
	step := targetWords - overlapWords
	if step <= 0 {
		return 0, models.InvalidConfigf("overlap_words (%d) must be < target_words (%d)", overlapWords, targetWords)
	}
	return step, nil
}

func windows(words []string, size, step int) []Window {
	if len(words) == 0 {
		return nil
	}
	out := make([]Window, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, Window{
			StartWord: start,
			EndWord:   end,
			Text:      strings.Join(words[start:end], " "),
		})
	}
	return out
}

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	step         int
	previewChars int
}

// NewChunker creates a chunker with the given size and overlap (in words).
// Invalid sizes are rejected here, before any document is processed.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	step, err := windowStep(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		step:         step,
		previewChars: DefaultPreviewChars,
	}, nil
}

// WithPreviewChars sets how many characters of each chunk are kept as its preview.
func (c *Chunker) WithPreviewChars(n int) *Chunker {
	if n > 0 {
		c.previewChars = n
	}
	return c
}

// Chunk splits text into chunk records for the given source.
func (c *Chunker) Chunk(sourceID, filename, text string) []models.ChunkRecord {
	ws := windows(strings.Fields(text), c.chunkSize, c.step)
	if len(ws) == 0 {
		return nil
	}
	records := make([]models.ChunkRecord, len(ws))
	for i, w := range ws {
		records[i] = models.ChunkRecord{
			Chunk: models.Chunk{
				SourceID:  sourceID,
				Ordinal:   i,
				StartWord: w.StartWord,
				EndWord:   w.EndWord,
				Text:      w.Text,
			},
			Filename: filename,
			ChunkID:  models.ChunkID(filename, i),
			Preview:  utils.TruncateRunes(w.Text, c.previewChars),
		}
	}
	return records
}
