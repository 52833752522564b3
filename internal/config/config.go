// Package config provides configuration loading and structs for the book search server.
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
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Acquire   AcquireConfig   `yaml:"acquire"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects the record store backend and holds paths for data files.
type StorageConfig struct {
	// Backend is "sqlite" or "bleve".
	Backend            string `yaml:"backend"`
	DatabasePath       string `yaml:"database_path"`
	BleveIndexPath     string `yaml:"bleve_index_path"`
	VectorIndexPath    string `yaml:"vector_index_path"`
	VectorIndexType    string `yaml:"vector_index_type"`
	EmbeddingCachePath string `yaml:"embedding_cache_path"` // empty disables the persistent cache
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "hash", "onnx" or "openai".
	Provider   string       `yaml:"provider"`
	ModelPath  string       `yaml:"model_path"`
	Dimensions int          `yaml:"dimensions"`
	MaxTokens  int          `yaml:"max_tokens"`
	CacheSize  int          `yaml:"cache_size"`
	OpenAI     OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// SearchConfig holds paging limits, fusion weights and per-call timeouts.
type SearchConfig struct {
	DefaultPageSize       int     `yaml:"default_page_size"`
	MaxPageSize           int     `yaml:"max_page_size"`
	SemanticCandidates    int     `yaml:"semantic_candidates"`
	MaxSemanticCandidates int     `yaml:"max_semantic_candidates"`
	MinSimilarity         float64 `yaml:"min_similarity"`
	LexicalBonus          float64 `yaml:"lexical_bonus"`
	LexicalBaseline       float64 `yaml:"lexical_baseline"`

	StoreTimeout     time.Duration `yaml:"store_timeout"`
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout"`
	IndexTimeout     time.Duration `yaml:"index_timeout"`
}

// IngestConfig describes the bulk source file and how its columns map to record fields.
type IngestConfig struct {
	SourcePath string `yaml:"source_path"`
	Delimiter  string `yaml:"delimiter"`
	// Encoding of CSV/TSV input, e.g. "utf-8" or "euc-kr". Workbooks are always UTF-8.
	Encoding  string        `yaml:"encoding"`
	Sheet     string        `yaml:"sheet"`
	BatchSize int           `yaml:"batch_size"`
	Workers   int           `yaml:"workers"`
	Watch     bool          `yaml:"watch"`
	Columns   ColumnMapping `yaml:"columns"`
}

// ColumnMapping names the source column for each record field.
type ColumnMapping struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Publisher   string `yaml:"publisher"`
	Category    string `yaml:"category"`
	PublishDate string `yaml:"publish_date"`
	Description string `yaml:"description"`
}

// AcquireConfig configures the external catalog client.
type AcquireConfig struct {
	BaseURL           string        `yaml:"base_url"`
	SearchPath        string        `yaml:"search_path"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxResults        int           `yaml:"max_results"`
	FetchDetails      bool          `yaml:"fetch_details"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Returns an error if the file cannot be read or parsed or the result is inconsistent.
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
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.EmbeddingCachePath = expandPath(cfg.Storage.EmbeddingCachePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Ingest.SourcePath = expandPath(cfg.Ingest.SourcePath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("invalid storage backend %q", c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case "hash", "onnx", "openai":
	default:
		return fmt.Errorf("invalid embedding provider %q", c.Embedding.Provider)
	}
	s := c.Search
	if s.LexicalBonus < 1 {
		return fmt.Errorf("search.lexical_bonus must be >= 1, got %g", s.LexicalBonus)
	}
	if s.LexicalBaseline < 0 || s.LexicalBaseline > s.LexicalBonus {
		return fmt.Errorf("search.lexical_baseline must be within [0, lexical_bonus], got %g", s.LexicalBaseline)
	}
	if s.MinSimilarity < 0 || s.MinSimilarity >= 1 {
		return fmt.Errorf("search.min_similarity must be within [0, 1), got %g", s.MinSimilarity)
	}
	if s.DefaultPageSize < 1 || s.DefaultPageSize > s.MaxPageSize {
		return fmt.Errorf("search.default_page_size must be within [1, %d], got %d", s.MaxPageSize, s.DefaultPageSize)
	}
	if len([]rune(c.Ingest.Delimiter)) != 1 {
		return fmt.Errorf("ingest.delimiter must be a single character, got %q", c.Ingest.Delimiter)
	}
	return nil
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
// other relative paths are relative to the home directory. Empty paths and ":memory:" are kept.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
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
