package acquire

import (
	"encoding/json"
	"io"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/ingest"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

type skippedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// MarshalJSON renders accepted books as items and skipped entries with their reasons.
func (b *Batch) MarshalJSON() ([]byte, error) {
	type plain Batch
	out := struct {
		*plain
		Items   []*models.Book `json:"items"`
		Skipped []skippedItem  `json:"skipped,omitempty"`
	}{plain: (*plain)(b), Items: b.Books()}
	for _, it := range b.Items {
		if it.Err != nil {
			out.Skipped = append(out.Skipped, skippedItem{Index: it.Index, Reason: it.Err.Reason})
		}
	}
	return json.Marshal(out)
}

// WriteJSON writes the batch as indented JSON.
func WriteJSON(w io.Writer, b *Batch) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// WriteCSV writes the accepted books in the ingestion column layout.
func WriteCSV(w io.Writer, b *Batch, cols config.ColumnMapping) error {
	return ingest.WriteCSV(w, b.Books(), cols)
}
