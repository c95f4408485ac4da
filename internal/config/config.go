// Package config provides configuration loading and structs for the medsage server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Upload      UploadConfig      `yaml:"upload"`
	Consult     ConsultConfig     `yaml:"consult"`
	Cases       CasesConfig       `yaml:"cases"`
	Watch       WatchConfig       `yaml:"watch"`
}

// WatchConfig holds inbox directory watch settings. Files dropped into these
// directories are ingested like uploads.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds local paths: the upload ledger and the memory vector store snapshot.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is "onnx" or "hash". When onnx fails to initialize the hash embedder is used.
	Provider    string `yaml:"provider"`
	ModelName   string `yaml:"model_name"`
	ModelPath   string `yaml:"model_path"`
	LibraryPath string `yaml:"library_path"`
	VocabPath   string `yaml:"vocab_path"`
	OutputName  string `yaml:"output_name"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	CacheSize   int    `yaml:"cache_size"`
}

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKeyEnv string `yaml:"api_key_env"`
	UseTLS    bool   `yaml:"use_tls"`
}

// APIKey reads the Qdrant API key from the configured environment variable.
func (q *QdrantConfig) APIKey() string {
	if q.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(q.APIKeyEnv)
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	Type       string       `yaml:"type"` // qdrant | memory
	Collection string       `yaml:"collection"`
	Distance   string       `yaml:"distance"`
	HNSWEf     uint64       `yaml:"hnsw_ef"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini | openai
	Model           string  `yaml:"model"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

// APIKey reads the provider API key from the configured environment variable.
func (l *LLMConfig) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// DefaultConfidenceThreshold is the best-hit score at or above which answers are grounded.
const DefaultConfidenceThreshold = 0.15

// ConfidenceThresholdOrDefault returns the configured threshold, or the default when unset.
func (r *RetrievalConfig) ConfidenceThresholdOrDefault() float64 {
	if r.ConfidenceThreshold != nil {
		return *r.ConfidenceThreshold
	}
	return DefaultConfidenceThreshold
}

// RetrievalConfig holds chunking, search and prompt budget settings.
type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkStride  int `yaml:"chunk_stride"`
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// ConfidenceThreshold routes between grounded and fallback answers. Nil means
	// DefaultConfidenceThreshold; an explicit 0 is kept.
	ConfidenceThreshold    *float64 `yaml:"confidence_threshold,omitempty"`
	WeakContextChars       int      `yaml:"weak_context_chars"`
	GroundedContextChars   int      `yaml:"grounded_context_chars"`
	SuggestionContextChars int      `yaml:"suggestion_context_chars"`
	PreviewChars           int      `yaml:"preview_chars"`
}

// UploadConfig holds upload acceptance rules.
type UploadConfig struct {
	AllowedExtensions   []string `yaml:"allowed_extensions"`
	MedicalOnly         *bool    `yaml:"medical_only"`
	MedicalKeywords     []string `yaml:"medical_keywords"`
	MaxBytes            int64    `yaml:"max_bytes"`
	SummaryContextChars int      `yaml:"summary_context_chars"`
}

// MedicalOnlyOrDefault returns whether the medical keyword filter is on; defaults to true when unset.
func (u *UploadConfig) MedicalOnlyOrDefault() bool {
	if u.MedicalOnly != nil {
		return *u.MedicalOnly
	}
	return true
}

// ConsultConfig holds retrieval settings for the diagnostic consult path.
type ConsultConfig struct {
	TopK   int    `yaml:"top_k"`
	Domain string `yaml:"domain"`
	HNSWEf uint64 `yaml:"hnsw_ef"`
}

// CasesConfig holds dataset loading settings.
type CasesConfig struct {
	BatchSize    int `yaml:"batch_size"`
	MaxTextChars int `yaml:"max_text_chars"`
	SliceChars   int `yaml:"slice_chars"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.LibraryPath != "" {
		cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks provider names and numeric ranges after defaults are applied. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (supported: %s)", field, value, strings.Join(allowed, ", ")))
	}
	oneOf("embedding.provider", c.Embedding.Provider, "onnx", "hash")
	oneOf("vector_store.type", c.VectorStore.Type, "qdrant", "memory")
	oneOf("vector_store.distance", c.VectorStore.Distance, "cosine", "dot")
	oneOf("llm.provider", c.LLM.Provider, "gemini", "openai")

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	if c.VectorStore.Collection == "" {
		errs = append(errs, fmt.Errorf("vector_store.collection is required"))
	}
	if t := c.Retrieval.ConfidenceThresholdOrDefault(); t < -1 || t > 1 {
		errs = append(errs, fmt.Errorf("retrieval.confidence_threshold: %g outside [-1, 1]", t))
	}
	if c.Retrieval.MaxLimit > 0 && c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		errs = append(errs, fmt.Errorf("retrieval.default_limit %d exceeds max_limit %d",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit))
	}
	return errors.Join(errs...)
}

// Default returns a config with every default applied, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
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
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
