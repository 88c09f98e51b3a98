package embedding

import "go.uber.org/zap"

// ONNXConfig configures the local ONNX embedder.
type ONNXConfig struct {
	ModelPath string
	// VocabPath is the WordPiece vocab.txt the model was trained with.
	VocabPath  string
	Dimensions int
	MaxTokens  int
	// LibraryPath points at the onnxruntime shared library when it is not on the default search path.
	LibraryPath string
	Logger      *zap.Logger
}
