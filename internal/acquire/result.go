package acquire

import (
	"fmt"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

// Skip reasons.
const (
	ReasonNoTitle = "missing_title"
	ReasonDetail  = "detail_fetch_failed"
)

// ExtractError explains why an item was skipped.
type ExtractError struct {
	Index  int
	Reason string
	Err    error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("item %d: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Item is one extracted listing: exactly one of Book and Err is set.
type Item struct {
	Index int           `json:"index"`
	Book  *models.Book  `json:"book,omitempty"`
	Err   *ExtractError `json:"-"`
}

// Report aggregates a batch.
type Report struct {
	Fetched  int            `json:"fetched"`
	Accepted int            `json:"accepted"`
	Skipped  int            `json:"skipped"`
	Reasons  map[string]int `json:"reasons,omitempty"`
}

// Batch is the result of one listing request.
type Batch struct {
	Query  string `json:"query,omitempty"`
	Page   int    `json:"page"`
	Items  []Item `json:"-"`
	Report Report `json:"report"`
}

func newBatch(items []Item) *Batch {
	b := &Batch{Items: items, Report: Report{Fetched: len(items)}}
	for _, it := range items {
		if it.Err != nil {
			b.Report.Skipped++
			if b.Report.Reasons == nil {
				b.Report.Reasons = make(map[string]int)
			}
			b.Report.Reasons[it.Err.Reason]++
			continue
		}
		b.Report.Accepted++
	}
	return b
}

// Books returns the accepted records in page order.
func (b *Batch) Books() []*models.Book {
	books := make([]*models.Book, 0, b.Report.Accepted)
	for _, it := range b.Items {
		if it.Err == nil && it.Book != nil {
			books = append(books, it.Book)
		}
	}
	return books
}
