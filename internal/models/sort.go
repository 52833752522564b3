package models

import (
	"fmt"
	"strings"
)

// SortKey selects the ordering of a search response.
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortTitle     SortKey = "title"
	SortAuthor    SortKey = "author"
	SortDate      SortKey = "date"

	// SortID orders by ascending record ID. It is used internally and is not accepted from callers.
	SortID SortKey = "id"
)

// SortSpec describes how one sort key orders records.
type SortSpec struct {
	// Field is the record field (and storage column) ordered on.
	Field string
	// Desc orders descending when set.
	Desc bool
	// Fold compares case-insensitively.
	Fold bool
}

// SortSpecs maps each concrete sort key to its ordering. Relevance is absent: it is either
// computed by fusion or falls back to SortDate when no semantic component exists.
var SortSpecs = map[SortKey]SortSpec{
	SortTitle:  {Field: "title", Fold: true},
	SortAuthor: {Field: "author", Fold: true},
	SortDate:   {Field: "publish_date", Desc: true},
	SortID:     {Field: "id"},
}

// ParseSortKey parses a caller-supplied sort key. The empty string yields SortRelevance.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortRelevance, nil
	case SortRelevance, SortTitle, SortAuthor, SortDate:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Valid reports whether k may be requested by a caller.
func (k SortKey) Valid() bool {
	switch k {
	case SortRelevance, SortTitle, SortAuthor, SortDate:
		return true
	}
	return false
}

// Storage returns the key a record store orders by for k.
func (k SortKey) Storage() SortKey {
	if k == SortRelevance {
		return SortDate
	}
	return k
}

// Spec returns the ordering for k, resolving relevance to its storage fallback.
func (k SortKey) Spec() SortSpec {
	return SortSpecs[k.Storage()]
}

// Value returns the field of b that s orders on.
func (s SortSpec) Value(b *Book) string {
	switch s.Field {
	case "title":
		return b.Title
	case "author":
		return b.Author
	case "publish_date":
		return b.PublishDate
	}
	return ""
}

// CompareBooks orders a and b by key, breaking ties by ascending ID. It matches the
// ordering record stores apply for the same key.
func CompareBooks(a, b *Book, key SortKey) int {
	spec := key.Spec()
	if spec.Field != "id" {
		av, bv := spec.Value(a), spec.Value(b)
		var c int
		if spec.Fold {
			c = CompareFold(av, bv)
		} else {
			c = strings.Compare(av, bv)
		}
		if spec.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
