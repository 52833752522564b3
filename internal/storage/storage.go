// Package storage defines the record store interface and its SQLite and Bleve backends.
package storage

import (
	"context"
	"errors"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

// ErrNotFound is returned when a record ID does not exist.
var ErrNotFound = errors.New("book not found")

// RecordStore filters, orders and pages book records. Implementations apply the matching
// and ordering rules of models.Predicate and models.CompareBooks.
type RecordStore interface {
	// Filter returns the number of records matching pred and up to limit of them,
	// ordered by sort and skipping offset. A non-positive limit returns only the count.
	Filter(ctx context.Context, pred models.Predicate, sort models.SortKey, limit, offset int) (int, []*models.Book, error)
	// GetBooks returns the records for ids that exist, keyed by ID.
	GetBooks(ctx context.Context, ids []int64) (map[int64]*models.Book, error)
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	Count(ctx context.Context) (int, error)
	// Categories returns each distinct non-empty category with its record count, ordered by category.
	Categories(ctx context.Context) ([]models.CategoryCount, error)

	// BeginReplace stages books as the complete new contents of the store. Readers keep
	// seeing the previous contents until the returned Replacement is committed.
	BeginReplace(ctx context.Context, books []*models.Book) (Replacement, error)

	Close() error
}

// Replacement is a staged full replacement of a store's contents.
type Replacement interface {
	Commit() error
	Rollback() error
}

// New opens the record store for backend ("sqlite" or "bleve") at path.
func New(backend, path string) (RecordStore, error) {
	switch backend {
	case "", "sqlite":
		return NewSQLiteStorage(path)
	case "bleve":
		return NewBleveStorage(path)
	default:
		return nil, errors.New("unknown storage backend: " + backend)
	}
}
