package models

import (
	"fmt"
	"strings"
)

// Page size limits accepted by the search engine.
const (
	MinPageSize = 1
	MaxPageSize = 100
)

// SearchRequest is a caller's search. Zero Page, PageSize and Sort are filled by ApplyDefaults
// at the transport edge; Validate never clamps.
type SearchRequest struct {
	Query          string  `json:"q"`
	Category       string  `json:"category,omitempty"`
	Sort           SortKey `json:"sort,omitempty"`
	Page           int     `json:"page,omitempty"`
	PageSize       int     `json:"size,omitempty"`
	IncludeMatches bool    `json:"include_matches,omitempty"`
}

// ApplyDefaults trims text fields and fills unset paging and sort fields.
func (r *SearchRequest) ApplyDefaults(defaultPageSize int) {
	r.Query = strings.TrimSpace(r.Query)
	r.Category = strings.TrimSpace(r.Category)
	if r.Sort == "" {
		r.Sort = SortRelevance
	}
	if r.Page == 0 {
		r.Page = 1
	}
	if r.PageSize == 0 {
		r.PageSize = defaultPageSize
	}
}

// Validate rejects out-of-range paging and unknown sort keys.
func (r *SearchRequest) Validate() error {
	if r.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", r.Page)
	}
	if r.PageSize < MinPageSize || r.PageSize > MaxPageSize {
		return fmt.Errorf("size must be between %d and %d, got %d", MinPageSize, MaxPageSize, r.PageSize)
	}
	if !r.Sort.Valid() {
		return fmt.Errorf("unknown sort key %q", r.Sort)
	}
	return nil
}

// Offset is the zero-based index of the first item on the requested page.
func (r *SearchRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}
