// Package models defines core data structures for book records, search requests, and search results.
package models

import "strings"

// Extras keys written by catalog acquisition.
const (
	ExtraPrice      = "price"
	ExtraCoverImage = "cover_image"
	ExtraLink       = "link"
	ExtraISBN       = "isbn"
	ExtraSource     = "source"
)

// Book is a single catalog record. ID is assigned at ingestion time and never changes
// for the lifetime of a dataset generation.
type Book struct {
	ID          int64             `json:"id" db:"id"`
	Title       string            `json:"title" db:"title"`
	Author      string            `json:"author" db:"author"`
	Publisher   string            `json:"publisher" db:"publisher"`
	Category    string            `json:"category" db:"category"`
	PublishDate string            `json:"publish_date" db:"publish_date"`
	Description string            `json:"description" db:"description"`
	Extras      map[string]string `json:"extras,omitempty" db:"extras"`
}

// EmbeddingText is the text embedded for a record, both at index time and for status output.
// Empty fields are skipped so sparse records do not produce separator noise.
func (b *Book) EmbeddingText() string {
	parts := make([]string, 0, 6)
	for _, s := range []string{b.Title, b.Author, b.Publisher, b.Category, b.Description, b.PublishDate} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}

// MatchesText reports whether q is a case-insensitive substring of the title, author,
// publisher or description. An empty q matches every record.
func (b *Book) MatchesText(q string) bool {
	if q == "" {
		return true
	}
	return ContainsFold(b.Title, q) ||
		ContainsFold(b.Author, q) ||
		ContainsFold(b.Publisher, q) ||
		ContainsFold(b.Description, q)
}

// Predicate is the structured filter applied by record stores.
type Predicate struct {
	// Text is a case-insensitive substring matched against title, author, publisher and description.
	Text string
	// Category is an exact category filter; empty means no filter.
	Category string
}

// Matches evaluates the predicate in memory with the same rules every store applies.
func (p Predicate) Matches(b *Book) bool {
	if p.Category != "" && b.Category != p.Category {
		return false
	}
	return b.MatchesText(p.Text)
}

// CategoryCount is a distinct category with the number of records in it.
type CategoryCount struct {
	Category string `json:"category"`
	// Class is the KDC main class name; stores leave it empty.
	Class string `json:"class,omitempty"`
	Count int    `json:"count"`
}
