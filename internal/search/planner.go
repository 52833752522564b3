package search

import (
	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

// Plan is the decomposition of one request into a lexical fetch and an optional semantic lookup.
type Plan struct {
	Query     string
	Predicate models.Predicate
	Sort      models.SortKey
	Offset    int
	PageSize  int

	// Semantic is false for an empty query.
	Semantic bool
	// K is the number of semantic candidates; it does not depend on the page.
	K int

	LexicalSort   models.SortKey
	LexicalOffset int
	LexicalLimit  int
}

// NewPlan builds the plan for a validated request.
//
// Without a semantic branch the store pages directly. With one, the lexical fetch starts at
// zero: field sorts need the first Offset+PageSize rows in field order, and relevance needs
// enough ID-ordered rows to fill the page after semantic hits are removed from them.
func NewPlan(req *models.SearchRequest, cfg *config.SearchConfig) Plan {
	p := Plan{
		Query:     req.Query,
		Predicate: models.Predicate{Text: req.Query, Category: req.Category},
		Sort:      req.Sort,
		Offset:    req.Offset(),
		PageSize:  req.PageSize,
		Semantic:  req.Query != "",
	}
	if !p.Semantic {
		p.LexicalSort = req.Sort
		p.LexicalOffset = p.Offset
		p.LexicalLimit = p.PageSize
		return p
	}

	p.K = cfg.SemanticCandidates
	if cfg.MaxSemanticCandidates > 0 && p.K > cfg.MaxSemanticCandidates {
		p.K = cfg.MaxSemanticCandidates
	}
	if p.K < 1 {
		p.K = 1
	}

	p.LexicalOffset = 0
	if req.Sort == models.SortRelevance {
		p.LexicalSort = models.SortID
		p.LexicalLimit = p.Offset + p.PageSize + p.K
	} else {
		p.LexicalSort = req.Sort
		p.LexicalLimit = p.Offset + p.PageSize
	}
	return p
}
