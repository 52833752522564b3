package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/acquire"
	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/embedding"
	"github.com/bets3435-dev/book-search-app/internal/indexer"
	"github.com/bets3435-dev/book-search-app/internal/ingest"
	"github.com/bets3435-dev/book-search-app/internal/search"
	"github.com/bets3435-dev/book-search-app/internal/storage"
	"github.com/bets3435-dev/book-search-app/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Store       storage.RecordStore
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Engine      *search.Engine
	Indexer     *indexer.Indexer
}

func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.VectorIndex != nil {
		errs = append(errs, c.VectorIndex.Close())
	}
	return errors.Join(errs...)
}

// storePath is the on-disk location of the configured record store backend.
func storePath(cfg *config.Config) string {
	if cfg.Storage.Backend == "bleve" {
		return cfg.Storage.BleveIndexPath
	}
	return cfg.Storage.DatabasePath
}

// checkServable rejects configurations the long-running server cannot use. An in-memory
// SQLite store holds a single connection, so every search would queue behind a rebuild.
func checkServable(cfg *config.Config) error {
	if cfg.Storage.Backend != "bleve" && cfg.Storage.DatabasePath == ":memory:" {
		return errors.New("storage.database_path \":memory:\" cannot serve concurrent searches; use a file path or the bleve backend")
	}
	return nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	path := storePath(cfg)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	c := &Components{}
	store, err := storage.New(cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	embedder, err := embedding.NewFromConfig(cfg.Embedding, cfg.Storage.EmbeddingCachePath, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize embedding provider %q: %w", cfg.Embedding.Provider, err)
	}
	c.Embedder = embedder

	vectorIndex, err := vector.NewVectorIndex(cfg.Storage.VectorIndexType, embedder.Dimensions())
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = vectorIndex
	if err := vectorIndex.Load(cfg.Storage.VectorIndexPath); err != nil {
		// The records are still searchable lexically; the next ingest rewrites the file.
		logger.Warn("vector index load skipped; run an ingest to rebuild it",
			zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
	logger.Info("vector index initialized",
		zap.String("type", vectorIndex.Type()),
		zap.Int("size", vectorIndex.Size()))

	c.Engine = search.NewEngine(store, embedder, vectorIndex, &cfg.Search, logger.Named("search"))

	loader, err := ingest.NewLoader(&cfg.Ingest, ingest.WithLogger(logger.Named("ingest")))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize loader: %w", err)
	}
	c.Indexer = indexer.NewIndexer(store, embedder, vectorIndex, c.Engine, &cfg.Ingest,
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithLoader(loader),
		indexer.WithVectorPath(cfg.Storage.VectorIndexPath),
	)
	return c, nil
}

func newAcquirer(cfg *config.Config, logger *zap.Logger) (*acquire.Client, error) {
	client, err := acquire.NewClient(&cfg.Acquire, acquire.WithLogger(logger.Named("acquire")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog client: %w", err)
	}
	return client, nil
}
