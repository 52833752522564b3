package models

// MatchKind records which retrieval path produced a result.
type MatchKind string

const (
	MatchLexical  MatchKind = "lexical"
	MatchSemantic MatchKind = "semantic"
	MatchBoth     MatchKind = "both"
)

// ScoredResult is a record with its fused ranking data.
type ScoredResult struct {
	Book       *Book     `json:"book"`
	Score      float64   `json:"score"`
	Similarity float64   `json:"similarity"`
	MatchKind  MatchKind `json:"match_kind"`
}

// Match is the per-item metadata returned when a caller asks for it.
type Match struct {
	ID        int64     `json:"id"`
	Score     float64   `json:"score"`
	MatchKind MatchKind `json:"match_kind"`
	// MatchedFields names the fields containing the query; empty for purely semantic hits.
	MatchedFields []string `json:"matched_fields,omitempty"`
	Reason        string   `json:"reason"`
	// Snippet is a description excerpt around the query when the description matched.
	Snippet string `json:"snippet,omitempty"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"size"`
	Items    []*Book  `json:"items"`
	Degraded bool     `json:"degraded"`
	Warnings []string `json:"warnings,omitempty"`
	// Matches is populated only when the request set IncludeMatches; it is index-aligned with Items.
	Matches []Match `json:"matches,omitempty"`
}
