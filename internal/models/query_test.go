package models

import (
	"testing"
)

func TestSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
	}{
		{"valid", SearchRequest{Query: "x", Sort: SortRelevance, Page: 1, PageSize: 20}, false},
		{"empty query is valid", SearchRequest{Sort: SortTitle, Page: 3, PageSize: 1}, false},
		{"page zero", SearchRequest{Sort: SortRelevance, Page: 0, PageSize: 20}, true},
		{"negative page", SearchRequest{Sort: SortRelevance, Page: -1, PageSize: 20}, true},
		{"size zero", SearchRequest{Sort: SortRelevance, Page: 1, PageSize: 0}, true},
		{"size above max", SearchRequest{Sort: SortRelevance, Page: 1, PageSize: 101}, true},
		{"size at max", SearchRequest{Sort: SortDate, Page: 1, PageSize: 100}, false},
		{"unknown sort", SearchRequest{Sort: "price", Page: 1, PageSize: 10}, true},
		{"internal sort rejected", SearchRequest{Sort: SortID, Page: 1, PageSize: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSearchRequest_ValidateDoesNotClamp(t *testing.T) {
	r := SearchRequest{Sort: SortRelevance, Page: 1, PageSize: 500}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error")
	}
	if r.PageSize != 500 {
		t.Errorf("PageSize changed to %d", r.PageSize)
	}
}

func TestSearchRequest_ApplyDefaults(t *testing.T) {
	r := SearchRequest{Query: "  python  ", Category: " 004 "}
	r.ApplyDefaults(20)
	if r.Query != "python" || r.Category != "004" {
		t.Errorf("not trimmed: %q %q", r.Query, r.Category)
	}
	if r.Page != 1 || r.PageSize != 20 || r.Sort != SortRelevance {
		t.Errorf("defaults not applied: %+v", r)
	}
	if r.Offset() != 0 {
		t.Errorf("Offset() = %d", r.Offset())
	}
	r.Page = 3
	if r.Offset() != 40 {
		t.Errorf("Offset() = %d, want 40", r.Offset())
	}
}

func TestParseSortKey(t *testing.T) {
	for in, want := range map[string]SortKey{"": SortRelevance, "Title": SortTitle, " date ": SortDate, "author": SortAuthor} {
		got, err := ParseSortKey(in)
		if err != nil || got != want {
			t.Errorf("ParseSortKey(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSortKey("popularity"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestCompareBooks(t *testing.T) {
	a := &Book{ID: 2, Title: "apple", Author: "Zed", PublishDate: "2020-01-01"}
	b := &Book{ID: 1, Title: "Banana", Author: "amy", PublishDate: "2021-01-01"}
	c := &Book{ID: 3, Title: "APPLE", Author: "zed", PublishDate: "2020-01-01"}

	if CompareBooks(a, b, SortTitle) >= 0 {
		t.Error("apple should sort before Banana")
	}
	if CompareBooks(a, c, SortTitle) >= 0 {
		t.Error("equal titles should tie-break by ID")
	}
	if CompareBooks(b, a, SortAuthor) >= 0 {
		t.Error("amy should sort before Zed")
	}
	if CompareBooks(b, a, SortDate) >= 0 {
		t.Error("newer date should sort first")
	}
	if CompareBooks(b, a, SortRelevance) >= 0 {
		t.Error("relevance falls back to date descending")
	}
	if CompareBooks(b, a, SortID) >= 0 {
		t.Error("ID 1 should sort before ID 2")
	}
}

func TestPredicate_Matches(t *testing.T) {
	b := &Book{Title: "Python Basics", Author: "Kim", Category: "004", Description: "Intro"}
	tests := []struct {
		p    Predicate
		want bool
	}{
		{Predicate{}, true},
		{Predicate{Text: "PYTHON"}, true},
		{Predicate{Text: "intro"}, true},
		{Predicate{Text: "java"}, false},
		{Predicate{Category: "004"}, true},
		{Predicate{Category: "00"}, false},
		{Predicate{Text: "kim", Category: "100"}, false},
	}
	for _, tt := range tests {
		if got := tt.p.Matches(b); got != tt.want {
			t.Errorf("%+v.Matches() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestEmbeddingText(t *testing.T) {
	b := &Book{Title: "T", Author: "A", Description: "D"}
	if got := b.EmbeddingText(); got != "T | A | D" {
		t.Errorf("EmbeddingText() = %q", got)
	}
}
