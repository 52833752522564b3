// Package cli renders search responses and acquisition batches for the booksearch command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one aligned line per record.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCSV writes records in the ingestion column layout. Acquisition output only.
	OutputCSV OutputFormat = "csv"
)

// ParseOutputFormat maps a flag value to an OutputFormat. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON, OutputCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, json or csv", s)
}

const (
	descriptionRunes = 160
	titleCols        = 40
	authorCols       = 18
	publisherCols    = 16
)

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		writeSearchCompact(w, resp)
		return nil
	case OutputText:
		writeSearchText(w, resp)
		return nil
	}
	return fmt.Errorf("output format %q is not supported for search results", format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSearchText(w io.Writer, resp *models.SearchResponse) {
	first := (resp.Page-1)*resp.PageSize + 1
	switch {
	case resp.Total == 0:
		fmt.Fprintf(w, "\nNo results.\n")
	case len(resp.Items) == 0:
		fmt.Fprintf(w, "\nFound %d results; page %d is past the end.\n", resp.Total, resp.Page)
	default:
		fmt.Fprintf(w, "\nFound %d results, showing %d-%d (page %d)\n",
			resp.Total, first, first+len(resp.Items)-1, resp.Page)
	}
	for _, warning := range resp.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintln(w)

	matches := matchIndex(resp)
	for i, book := range resp.Items {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. %s", first+i, book.Title)
		if m, ok := matches[book.ID]; ok {
			fmt.Fprintf(w, "  [%s %.4f]", m.MatchKind, m.Score)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "   %s\n", joinNonEmpty(" · ", book.Author, book.Publisher, book.PublishDate, book.Category))
		m, ok := matches[book.ID]
		switch {
		case ok && m.Snippet != "":
			fmt.Fprintf(w, "   %s\n", m.Snippet)
		case book.Description != "":
			fmt.Fprintf(w, "   %s\n", utils.Truncate(book.Description, descriptionRunes))
		}
		if ok && m.Reason != "" {
			fmt.Fprintf(w, "   why: %s\n", m.Reason)
		}
	}
	if len(resp.Items) > 0 {
		fmt.Fprintln(w)
	}
}

func writeSearchCompact(w io.Writer, resp *models.SearchResponse) {
	matches := matchIndex(resp)
	for _, book := range resp.Items {
		line := fmt.Sprintf("%6d  %s  %s  %s  %-10s", book.ID,
			utils.FitWidth(book.Title, titleCols),
			utils.FitWidth(book.Author, authorCols),
			utils.FitWidth(book.Publisher, publisherCols),
			book.PublishDate)
		if m, ok := matches[book.ID]; ok {
			line += fmt.Sprintf("  %-8s %.4f", m.MatchKind, m.Score)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func matchIndex(resp *models.SearchResponse) map[int64]models.Match {
	if len(resp.Matches) == 0 {
		return nil
	}
	out := make(map[int64]models.Match, len(resp.Matches))
	for _, m := range resp.Matches {
		out[m.ID] = m
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
