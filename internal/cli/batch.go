package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/bets3435-dev/book-search-app/internal/acquire"
	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/pkg/utils"
)

// WriteBatch writes an acquisition batch. CSV output uses cols so the file can be ingested as is.
func WriteBatch(w io.Writer, b *acquire.Batch, format OutputFormat, cols config.ColumnMapping) error {
	switch format {
	case OutputJSON:
		return acquire.WriteJSON(w, b)
	case OutputCSV:
		return acquire.WriteCSV(w, b, cols)
	case OutputText, OutputCompact:
		writeBatchText(w, b, format == OutputCompact)
		return nil
	}
	return fmt.Errorf("output format %q is not supported for acquisition", format)
}

func writeBatchText(w io.Writer, b *acquire.Batch, compact bool) {
	r := b.Report
	if !compact {
		fmt.Fprintf(w, "\n%q page %d: %d fetched, %d accepted, %d skipped\n\n", b.Query, b.Page, r.Fetched, r.Accepted, r.Skipped)
	}
	for _, book := range b.Books() {
		if compact {
			fmt.Fprintf(w, "%s  %s  %s  %s\n",
				utils.FitWidth(book.Title, titleCols),
				utils.FitWidth(book.Author, authorCols),
				utils.FitWidth(book.Publisher, publisherCols),
				book.Extras[models.ExtraISBN])
			continue
		}
		fmt.Fprintf(w, "- %s\n  %s\n", book.Title, joinNonEmpty(" · ", book.Author, book.Publisher, book.PublishDate, book.Extras[models.ExtraPrice]))
		if link := book.Extras[models.ExtraLink]; link != "" {
			fmt.Fprintf(w, "  %s\n", link)
		}
	}
	if compact || len(r.Reasons) == 0 {
		return
	}
	reasons := make([]string, 0, len(r.Reasons))
	for reason := range r.Reasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	fmt.Fprintln(w, "\nskipped:")
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %-22s %d\n", reason, r.Reasons[reason])
	}
}
