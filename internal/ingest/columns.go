package ingest

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

// ErrMissingColumns matches a *MissingColumnsError.
var ErrMissingColumns = errors.New("missing columns")

// MissingColumnsError lists every mapped column absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s", strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}

// extraColumns are optional source columns copied into Book.Extras when present.
var extraColumns = []string{
	models.ExtraPrice,
	models.ExtraCoverImage,
	models.ExtraLink,
	models.ExtraISBN,
	models.ExtraSource,
}

type columnMap struct {
	title, author, publisher, category, publishDate, description int
	extras                                                       map[string]int
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// newColumnMap resolves the mapping against header. Unmapped fields (empty names) are -1.
func newColumnMap(header []string, cols config.ColumnMapping) (*columnMap, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	var missing []string
	lookup := func(name string) int {
		if strings.TrimSpace(name) == "" {
			return -1
		}
		i, ok := index[normalizeHeader(name)]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}
	m := &columnMap{
		title:       lookup(cols.Title),
		author:      lookup(cols.Author),
		publisher:   lookup(cols.Publisher),
		category:    lookup(cols.Category),
		publishDate: lookup(cols.PublishDate),
		description: lookup(cols.Description),
		extras:      make(map[string]int),
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	for _, name := range extraColumns {
		if i, ok := index[name]; ok {
			m.extras[name] = i
		}
	}
	return m, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(norm.NFC.String(row[i]))
}

// book maps one row. It returns nil when every mapped cell is empty.
func (m *columnMap) book(row []string) *models.Book {
	b := &models.Book{
		Title:       cell(row, m.title),
		Author:      cell(row, m.author),
		Publisher:   cell(row, m.publisher),
		Category:    cell(row, m.category),
		PublishDate: cell(row, m.publishDate),
		Description: cell(row, m.description),
	}
	for name, i := range m.extras {
		if v := cell(row, i); v != "" {
			if b.Extras == nil {
				b.Extras = make(map[string]string)
			}
			b.Extras[name] = v
		}
	}
	if b.Title == "" && b.Author == "" && b.Publisher == "" && b.Category == "" &&
		b.PublishDate == "" && b.Description == "" && len(b.Extras) == 0 {
		return nil
	}
	return b
}
