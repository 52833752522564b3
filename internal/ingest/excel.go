package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

// ReadExcel reads the configured sheet, or the first one, of a workbook. The first row is the header.
func (l *Loader) ReadExcel(ctx context.Context, r io.Reader) ([]*models.Book, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheet := l.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	return l.rowsToBooks(ctx, rows[0], func(yield func([]string) error) error {
		for _, row := range rows[1:] {
			if err := yield(row); err != nil {
				return err
			}
		}
		return nil
	})
}
