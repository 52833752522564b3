package search

import (
	"strings"
	"unicode"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

const snippetRunes = 160

// ReasonSemantic explains a result that no field matched textually.
const ReasonSemantic = "semantically similar to the query"

// MatchedFields lists the fields of b containing query, ignoring case, in display order.
func MatchedFields(b *models.Book, query string) []string {
	if query == "" {
		return nil
	}
	var fields []string
	for _, f := range []struct {
		name, value string
	}{
		{"title", b.Title},
		{"author", b.Author},
		{"publisher", b.Publisher},
		{"category", b.Category},
		{"description", b.Description},
	} {
		if models.ContainsFold(f.value, query) {
			fields = append(fields, f.name)
		}
	}
	return fields
}

// MatchReason renders matched fields as a short explanation.
func MatchReason(fields []string) string {
	if len(fields) == 0 {
		return ReasonSemantic
	}
	return "query found in " + strings.Join(fields, ", ")
}

// Highlight returns at most maxRunes runes of content around the first case-insensitive
// occurrence of query. Cut ends are marked with "…". Without a match it returns the head.
func Highlight(content, query string, maxRunes int) string {
	runes := []rune(content)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return content
	}
	start := 0
	if pos := indexFold(runes, []rune(query)); pos > 0 {
		start = max(0, pos-maxRunes/4)
	}
	end := min(len(runes), start+maxRunes)
	start = max(0, end-maxRunes)

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString("…")
	}
	return b.String()
}

// indexFold is a rune-position substring search with per-rune lower-casing, so the
// position maps back onto the original runes.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}

func newMatch(r *models.ScoredResult, query string) models.Match {
	fields := MatchedFields(r.Book, query)
	m := models.Match{
		ID:            r.Book.ID,
		Score:         r.Score,
		MatchKind:     r.MatchKind,
		MatchedFields: fields,
		Reason:        MatchReason(fields),
	}
	for _, f := range fields {
		if f == "description" {
			m.Snippet = Highlight(r.Book.Description, query, snippetRunes)
		}
	}
	return m
}
