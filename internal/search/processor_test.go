package search

import (
	"errors"
	"testing"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

func TestProcessRequest(t *testing.T) {
	tests := []struct {
		name         string
		req          *models.SearchRequest
		wantQuery    string
		wantCategory string
		wantErr      bool
	}{
		{"trims query", &models.SearchRequest{Query: "  python \t", Sort: models.SortRelevance, Page: 1, PageSize: 20}, "python", "", false},
		{"blank query becomes empty", &models.SearchRequest{Query: "   ", Sort: models.SortRelevance, Page: 1, PageSize: 20}, "", "", false},
		{"trims category", &models.SearchRequest{Category: " 004 ", Sort: models.SortTitle, Page: 1, PageSize: 20}, "", "004", false},
		{"page zero", &models.SearchRequest{Sort: models.SortRelevance, Page: 0, PageSize: 20}, "", "", true},
		{"nil", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ProcessRequest(tt.req)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("err = %v, want ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProcessRequest: %v", err)
			}
			if tt.req.Query != tt.wantQuery || tt.req.Category != tt.wantCategory {
				t.Errorf("query=%q category=%q", tt.req.Query, tt.req.Category)
			}
		})
	}
}
