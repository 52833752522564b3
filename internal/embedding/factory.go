package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/metrics"
)

// NewFromConfig builds the configured provider wrapped in a CachedEmbedder. When cachePath is
// set, embeddings also persist in a Badger store there.
func NewFromConfig(cfg config.EmbeddingConfig, cachePath string, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		inner    Embedder
		identity string
	)
	switch cfg.Provider {
	case "", "hash":
		inner = NewHashEmbedder(cfg.Dimensions)
		identity = fmt.Sprintf("hash-%d", cfg.Dimensions)
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		inner = e
		identity = "onnx:" + cfg.ModelPath
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = e
		identity = "openai:" + cfg.OpenAI.Model
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	var store kvStore
	if cachePath != "" {
		s, err := OpenBadgerStore(cachePath, logger)
		if err != nil {
			_ = inner.Close()
			return nil, err
		}
		store = s
	}
	logger.Info("Embedding provider ready",
		zap.String("provider", identity),
		zap.Int("dimensions", inner.Dimensions()),
		zap.Bool("persistent_cache", store != nil))
	return NewCachedEmbedder(inner, identity, NewEmbeddingCache(cfg.CacheSize), store, metrics.EmbeddingCacheTotal, logger.Named("embedding")), nil
}
