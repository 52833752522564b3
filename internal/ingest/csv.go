package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

// ReadCSV reads delimited text with a header row. A UTF-8 byte order mark is ignored.
func (l *Loader) ReadCSV(ctx context.Context, r io.Reader, delimiter rune) ([]*models.Book, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\ufeff" {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	return l.rowsToBooks(ctx, header, func(yield func([]string) error) error {
		for {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("parse CSV: %w", err)
			}
			if err := yield(row); err != nil {
				return err
			}
		}
	})
}
