package config

import (
	"os"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/books.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/vectors.bin"
	}
	if cfg.Storage.VectorIndexType == "" {
		cfg.Storage.VectorIndexType = "memory"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.OpenAI.Model == "" {
		cfg.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.OpenAI.APIKey == "" {
		cfg.Embedding.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.Search.DefaultPageSize == 0 {
		cfg.Search.DefaultPageSize = 20
	}
	if cfg.Search.MaxPageSize == 0 {
		cfg.Search.MaxPageSize = 100
	}
	if cfg.Search.SemanticCandidates == 0 {
		cfg.Search.SemanticCandidates = 200
	}
	if cfg.Search.MaxSemanticCandidates == 0 {
		cfg.Search.MaxSemanticCandidates = 1000
	}
	if cfg.Search.LexicalBonus == 0 {
		cfg.Search.LexicalBonus = 1.0
	}
	// A zero baseline is indistinguishable from unset.
	if cfg.Search.LexicalBaseline == 0 {
		cfg.Search.LexicalBaseline = 0.5
	}
	if cfg.Search.StoreTimeout == 0 {
		cfg.Search.StoreTimeout = 5 * time.Second
	}
	if cfg.Search.EmbeddingTimeout == 0 {
		cfg.Search.EmbeddingTimeout = 3 * time.Second
	}
	if cfg.Search.IndexTimeout == 0 {
		cfg.Search.IndexTimeout = 2 * time.Second
	}

	if cfg.Ingest.Delimiter == "" {
		cfg.Ingest.Delimiter = ","
	}
	if cfg.Ingest.Encoding == "" {
		cfg.Ingest.Encoding = "utf-8"
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 5000
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	applyColumnDefaults(&cfg.Ingest.Columns)

	if cfg.Acquire.BaseURL == "" {
		cfg.Acquire.BaseURL = "https://www.yes24.com"
	}
	if cfg.Acquire.SearchPath == "" {
		cfg.Acquire.SearchPath = "/Product/Search"
	}
	if cfg.Acquire.UserAgent == "" {
		cfg.Acquire.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	if cfg.Acquire.Timeout == 0 {
		cfg.Acquire.Timeout = 10 * time.Second
	}
	if cfg.Acquire.RequestsPerSecond == 0 {
		cfg.Acquire.RequestsPerSecond = 2
	}
	if cfg.Acquire.MaxResults == 0 {
		cfg.Acquire.MaxResults = 20
	}
}

// DefaultColumns maps each field to a column of the same name.
func DefaultColumns() ColumnMapping {
	var m ColumnMapping
	applyColumnDefaults(&m)
	return m
}

func applyColumnDefaults(m *ColumnMapping) {
	if m.Title == "" {
		m.Title = "title"
	}
	if m.Author == "" {
		m.Author = "author"
	}
	if m.Publisher == "" {
		m.Publisher = "publisher"
	}
	if m.Category == "" {
		m.Category = "category"
	}
	if m.PublishDate == "" {
		m.PublishDate = "publish_date"
	}
	if m.Description == "" {
		m.Description = "description"
	}
}
