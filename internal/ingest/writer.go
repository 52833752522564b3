package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

// WriteCSV writes books with a header in the given column layout, followed by the extras
// columns, so the output can be loaded back with the same mapping.
func WriteCSV(w io.Writer, books []*models.Book, cols config.ColumnMapping) error {
	type column struct {
		name  string
		value func(*models.Book) string
	}
	var layout []column
	add := func(name string, value func(*models.Book) string) {
		if name != "" {
			layout = append(layout, column{name, value})
		}
	}
	add(cols.Title, func(b *models.Book) string { return b.Title })
	add(cols.Author, func(b *models.Book) string { return b.Author })
	add(cols.Publisher, func(b *models.Book) string { return b.Publisher })
	add(cols.Category, func(b *models.Book) string { return b.Category })
	add(cols.PublishDate, func(b *models.Book) string { return b.PublishDate })
	add(cols.Description, func(b *models.Book) string { return b.Description })
	for _, name := range extraColumns {
		name := name
		add(name, func(b *models.Book) string { return b.Extras[name] })
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(layout))
	for i, c := range layout {
		header[i] = c.name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(layout))
	for _, b := range books {
		for i, c := range layout {
			row[i] = c.value(b)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
