package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"
)

// ErrKeyNotFound is returned by a KV store for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// BadgerStore is a persistent key-value store for cached embeddings.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debugf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debugf(msg, items...) }

// OpenBadgerStore opens a Badger database in dir, creating it if needed.
// An empty dir opens an in-memory database.
func OpenBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create embedding cache directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the value for key or ErrKeyNotFound.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return out, err
}

// Set stores value under key.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
