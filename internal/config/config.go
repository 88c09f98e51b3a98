// Package config provides configuration loading and structs for the kotae server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level,omitempty"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Sources    SourcesConfig    `yaml:"sources"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Build      BuildConfig      `yaml:"build"`
	Keyword    KeywordConfig    `yaml:"keyword"`
}

// SourcesConfig lists the documents an index is built from.
type SourcesConfig struct {
	Paths      []string `yaml:"paths"`
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
	// Watch rebuilds the index when a source file changes (serve only).
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether directories are walked recursively; defaults to true when unset.
func (s *SourcesConfig) RecursiveOrDefault() bool {
	if s.Recursive != nil {
		return *s.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes bounds a single /api/v1/build request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// StorageConfig holds paths for the persisted index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	IndexPath      string `yaml:"index_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// ChunkingConfig holds word-window settings.
type ChunkingConfig struct {
	TargetWords  int `yaml:"target_words"`
	OverlapWords int `yaml:"overlap_words"`
	PreviewChars int `yaml:"preview_chars"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Provider is one of "mock", "onnx", "openai".
	Provider  string `yaml:"provider"`
	ModelPath string `yaml:"model_path"`
	// VocabPath is the model's WordPiece vocab.txt; it defaults to vocab.txt beside ModelPath.
	// Without it the onnx provider falls back to mock embeddings.
	VocabPath string `yaml:"onnx_vocab_path"`
	// LibraryPath locates the onnxruntime shared library for the onnx provider.
	LibraryPath string      `yaml:"onnx_library_path"`
	Model       string      `yaml:"model"`
	BaseURL     string      `yaml:"base_url"`
	APIKey      string      `yaml:"api_key"`
	Dimensions  int         `yaml:"dimensions"`
	MaxTokens   int         `yaml:"max_tokens"`
	BatchSize   int         `yaml:"batch_size"`
	CacheSize   int         `yaml:"cache_size"`
	Redis       RedisConfig `yaml:"redis"`
}

// RedisConfig enables the shared embedding cache when Addrs is non-empty.
type RedisConfig struct {
	Addrs    []string      `yaml:"addrs"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether a Redis cache is configured.
func (r *RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Type is "memory" or "faiss".
	Type string `yaml:"type"`
}

// RetrievalConfig holds query-time defaults.
type RetrievalConfig struct {
	TopK               int     `yaml:"top_k"`
	MinScore           float64 `yaml:"min_score"`
	MaxContexts        int     `yaml:"max_contexts"`
	MaxCharsPerContext int     `yaml:"max_chars_per_context"`
	UseGeneration      *bool   `yaml:"use_generation"`
	ExtractiveContexts int     `yaml:"extractive_contexts"`
	FallbackAnswer     string  `yaml:"fallback_answer"`
}

// GenerationEnabled returns use_generation; defaults to true when unset.
func (r *RetrievalConfig) GenerationEnabled() bool {
	if r.UseGeneration != nil {
		return *r.UseGeneration
	}
	return true
}

// GenerationConfig selects and configures the answer generator.
type GenerationConfig struct {
	// Provider is one of "openai", "static", "none".
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	MaxTokens    int    `yaml:"max_tokens"`
	StaticAnswer string `yaml:"static_answer"`
}

// BuildConfig holds index build settings.
type BuildConfig struct {
	Workers int   `yaml:"workers"`
	Dedupe  *bool `yaml:"dedupe"`
}

// DedupeOrDefault returns whether duplicate chunks are dropped; defaults to true when unset.
func (b *BuildConfig) DedupeOrDefault() bool {
	if b.Dedupe != nil {
		return *b.Dedupe
	}
	return true
}

// KeywordConfig enables the Bleve passage index.
type KeywordConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Environment references such as ${OPENAI_API_KEY} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}
	for i := range cfg.Sources.Paths {
		cfg.Sources.Paths[i] = expandPath(cfg.Sources.Paths[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv fills unset API keys from OPENAI_API_KEY.
func ApplyEnv(cfg *Config) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = key
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = key
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
