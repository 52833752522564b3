package search

import (
	"testing"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

func TestNewPlan(t *testing.T) {
	cfg := testSearchConfig()
	cfg.SemanticCandidates = 50

	tests := []struct {
		name     string
		req      models.SearchRequest
		semantic bool
		sort     models.SortKey
		offset   int
		limit    int
	}{
		{"empty query pages in store", models.SearchRequest{Page: 3, PageSize: 10, Sort: models.SortTitle}, false, models.SortTitle, 20, 10},
		{"empty query relevance", models.SearchRequest{Page: 1, PageSize: 10, Sort: models.SortRelevance}, false, models.SortRelevance, 0, 10},
		{"field sort fetches prefix", models.SearchRequest{Query: "go", Page: 3, PageSize: 10, Sort: models.SortAuthor}, true, models.SortAuthor, 0, 30},
		{"relevance fetches by id", models.SearchRequest{Query: "go", Page: 2, PageSize: 10, Sort: models.SortRelevance}, true, models.SortID, 0, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlan(&tt.req, cfg)
			if p.Semantic != tt.semantic {
				t.Errorf("Semantic = %v, want %v", p.Semantic, tt.semantic)
			}
			if p.LexicalSort != tt.sort {
				t.Errorf("LexicalSort = %s, want %s", p.LexicalSort, tt.sort)
			}
			if p.LexicalOffset != tt.offset || p.LexicalLimit != tt.limit {
				t.Errorf("lexical window = (%d, %d), want (%d, %d)", p.LexicalOffset, p.LexicalLimit, tt.offset, tt.limit)
			}
			if p.Offset != tt.req.Offset() || p.PageSize != tt.req.PageSize {
				t.Errorf("page = (%d, %d)", p.Offset, p.PageSize)
			}
		})
	}
}

func TestNewPlan_CandidateCap(t *testing.T) {
	cfg := testSearchConfig()
	cfg.SemanticCandidates = 5000
	cfg.MaxSemanticCandidates = 1000

	small := NewPlan(&models.SearchRequest{Query: "go", Page: 1, PageSize: 10, Sort: models.SortRelevance}, cfg)
	deep := NewPlan(&models.SearchRequest{Query: "go", Page: 90, PageSize: 100, Sort: models.SortRelevance}, cfg)
	if small.K != 1000 || deep.K != 1000 {
		t.Errorf("K = %d / %d, want 1000 regardless of page", small.K, deep.K)
	}
}
