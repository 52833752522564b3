// Package ingest reads book catalogs from CSV and Excel files into records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Loader reads catalog files using a column mapping.
type Loader struct {
	delimiter rune
	charset   encoding.Encoding
	sheet     string
	columns   config.ColumnMapping
	logger    *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets a logger for skipped-row output.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader returns a loader for the ingest configuration.
func NewLoader(cfg *config.IngestConfig, opts ...LoaderOption) (*Loader, error) {
	delim := ','
	if cfg.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(cfg.Delimiter)
		if size != len(cfg.Delimiter) || r == utf8.RuneError {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", cfg.Delimiter)
		}
		delim = r
	}
	enc, err := resolveEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	columns := cfg.Columns
	if columns == (config.ColumnMapping{}) {
		columns = config.DefaultColumns()
	}
	l := &Loader{
		delimiter: delim,
		charset:   enc,
		sheet:     cfg.Sheet,
		columns:   columns,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load reads the file at path. The format is chosen by extension: .csv and .txt use the
// configured delimiter, .tsv uses tabs, .xlsx and .xlsm are read as workbooks. Delimited
// text is decoded from the configured encoding.
func (l *Loader) Load(ctx context.Context, path string) ([]*models.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	var books []*models.Book
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt", "":
		books, err = l.ReadCSV(ctx, l.decode(f), l.delimiter)
	case ".tsv":
		books, err = l.ReadCSV(ctx, l.decode(f), '\t')
	case ".xlsx", ".xlsm":
		books, err = l.ReadExcel(ctx, f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	l.logger.Info("Catalog loaded", zap.String("path", path), zap.Int("records", len(books)))
	return books, nil
}

// Supported reports whether path has an extension Load can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// rowsToBooks maps a header and data rows onto records. Blank rows are skipped.
func (l *Loader) rowsToBooks(ctx context.Context, header []string, rows func(yield func([]string) error) error) ([]*models.Book, error) {
	m, err := newColumnMap(header, l.columns)
	if err != nil {
		return nil, err
	}
	var books []*models.Book
	line := 1
	err = rows(func(row []string) error {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		b := m.book(row)
		if b == nil {
			l.logger.Debug("Skipping blank row", zap.Int("row", line))
			return nil
		}
		books = append(books, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return books, nil
}
