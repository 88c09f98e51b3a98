// Package embedding provides text embedders (mock, ONNX, OpenAI-compatible) and caching.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrProvider marks failures reported by a remote embedding provider.
var ErrProvider = errors.New("embedding provider error")

// Embedder produces unit-length vector embeddings for text.
// EmbedBatch returns one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// BatchError reports which slice of the input a failed batch covered.
type BatchError struct {
	Start, End int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embed texts [%d, %d): %v", e.Start, e.End, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// EmbedInBatches embeds texts in batches of batchSize, preserving order.
// The first failing batch aborts the call with a *BatchError.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		if err := ctx.Err(); err != nil {
			return nil, &BatchError{Start: start, End: end, Err: err}
		}
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, &BatchError{Start: start, End: end, Err: err}
		}
		if len(vecs) != end-start {
			return nil, &BatchError{Start: start, End: end, Err: fmt.Errorf("got %d vectors for %d texts", len(vecs), end-start)}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
