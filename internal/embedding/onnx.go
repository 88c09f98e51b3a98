//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/pkg/utils"
)

// onnxIO holds the fixed-shape tensors bound to a session.
type onnxIO struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXIO(maxTokens, dimensions int) (*onnxIO, error) {
	io := &onnxIO{}
	inputShape := ort.NewShape(1, int64(maxTokens))
	var err error
	if io.inputIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	if io.attentionMask, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		io.destroy()
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	if io.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		io.destroy()
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if io.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		io.destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return io, nil
}

func (io *onnxIO) destroy() {
	for _, t := range []*ort.Tensor[int64]{io.inputIDs, io.attentionMask, io.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if io.output != nil {
		_ = io.output.Destroy()
	}
	*io = onnxIO{}
}

// ONNXEmbedder runs a local sentence-embedding model through ONNX Runtime.
// The session has batch size 1, so calls are serialized.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	io         *onnxIO
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
	modelPath  string
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewONNXEmbedder loads cfg.ModelPath. The model must take input_ids, attention_mask and
// token_type_ids of shape [1, MaxTokens] and emit a pooled [1, Dimensions] "output".
func NewONNXEmbedder(cfg *ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.Dimensions <= 0 || cfg.MaxTokens < 2 {
		return nil, fmt.Errorf("invalid ONNX embedder shape: dimensions=%d max_tokens=%d", cfg.Dimensions, cfg.MaxTokens)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("ONNX model: %w", err)
	}
	tokenizer, err := LoadWordPieceVocab(cfg.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("ONNX tokenizer: %w", err)
	}
	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
		}
	}

	io, err := newONNXIO(cfg.MaxTokens, cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{io.inputIDs, io.attentionMask, io.tokenTypeIDs},
		[]ort.ArbitraryTensor{io.output},
		nil,
	)
	if err != nil {
		io.destroy()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("ONNX embedder loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.String("vocab_path", cfg.VocabPath),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("max_tokens", cfg.MaxTokens))
	return &ONNXEmbedder{
		session:    session,
		io:         io,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxTokens:  cfg.MaxTokens,
		modelPath:  cfg.ModelPath,
		logger:     logger,
	}, nil
}

// run embeds one text. Callers hold e.mu.
func (e *ONNXEmbedder) run(text string) ([]float32, error) {
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.io.inputIDs.GetData(), ids)
	copy(e.io.attentionMask.GetData(), mask)
	copy(e.io.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("ONNX inference: %w", err)
	}
	vec := make([]float32, e.dimensions)
	copy(vec, e.io.output.GetData())
	utils.NormalizeL2(vec)
	return vec, nil
}

// Embed returns the unit-length embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs the model once per text and checks ctx between texts.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("ONNX embedder is closed")
	}
	start := time.Now()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.run(text)
		if err != nil {
			metrics.EmbeddingErrorsTotal.WithLabelValues("onnx", e.modelPath, "inference").Inc()
			metrics.EmbeddingRequestsTotal.WithLabelValues("onnx", e.modelPath, "error").Inc()
			return nil, err
		}
		out[i] = vec
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("onnx", e.modelPath, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("onnx", e.modelPath).Observe(time.Since(start).Seconds())
	e.logger.Debug("ONNX batch embedded", zap.Int("texts", len(texts)), zap.Duration("duration", time.Since(start)))
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.io != nil {
		e.io.destroy()
		e.io = nil
	}
	return err
}
