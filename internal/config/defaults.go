package config

import (
	"path/filepath"
	"time"
)

// Defaults for the retrieval pipeline.
const (
	DefaultTargetWords        = 200
	DefaultOverlapWords       = 50
	DefaultPreviewChars       = 1500
	DefaultBatchSize          = 32
	DefaultTopK               = 6
	DefaultMaxContexts        = 6
	DefaultMaxCharsPerContext = 1000
	DefaultExtractiveContexts = 3
	DefaultFallbackAnswer     = "I don't know."
	DefaultWorkers            = 4
)

// ApplyDefaults sets default values for any zero values in cfg.
// MinScore has no default beyond its zero value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 64 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/kotae.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/kotae/data/indices/vectors.idx"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kotae/data/indices/bleve"
	}
	if cfg.Sources.Extensions == nil {
		cfg.Sources.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx"}
	}
	if cfg.Sources.Debounce == 0 {
		cfg.Sources.Debounce = 2 * time.Second
	}
	// overlap is only defaulted alongside the target so an explicit target can run without overlap
	if cfg.Chunking.TargetWords == 0 {
		cfg.Chunking.TargetWords = DefaultTargetWords
		if cfg.Chunking.OverlapWords == 0 {
			cfg.Chunking.OverlapWords = DefaultOverlapWords
		}
	}
	if cfg.Chunking.PreviewChars == 0 {
		cfg.Chunking.PreviewChars = DefaultPreviewChars
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), "vocab.txt")
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Provider != "openai" {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = DefaultBatchSize
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Redis.Enabled() && cfg.Embedding.Redis.TTL == 0 {
		cfg.Embedding.Redis.TTL = 7 * 24 * time.Hour
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.MaxContexts == 0 {
		cfg.Retrieval.MaxContexts = DefaultMaxContexts
	}
	if cfg.Retrieval.MaxCharsPerContext == 0 {
		cfg.Retrieval.MaxCharsPerContext = DefaultMaxCharsPerContext
	}
	if cfg.Retrieval.ExtractiveContexts == 0 {
		cfg.Retrieval.ExtractiveContexts = DefaultExtractiveContexts
	}
	if cfg.Retrieval.FallbackAnswer == "" {
		cfg.Retrieval.FallbackAnswer = DefaultFallbackAnswer
	}
	// use_generation defaults to true when unset (nil).
	if cfg.Retrieval.UseGeneration == nil {
		t := true
		cfg.Retrieval.UseGeneration = &t
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "none"
	}
	if cfg.Generation.Provider == "openai" && cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 120
	}
	if cfg.Build.Workers == 0 {
		cfg.Build.Workers = DefaultWorkers
	}
	if cfg.Build.Dedupe == nil {
		t := true
		cfg.Build.Dedupe = &t
	}
}
