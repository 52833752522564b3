package search

import (
	"math"
	"sort"

	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/internal/vector"
)

// Weights are the relevance fusion constants.
type Weights struct {
	// LexicalBonus is added to the similarity of records found by both paths. It must be >= 1.
	LexicalBonus float64
	// LexicalBaseline is the score of records found only by text match.
	LexicalBaseline float64
	// MinSimilarity drops semantic candidates at or below it.
	MinSimilarity float64
}

// SemanticHit is a semantic candidate resolved to its record.
type SemanticHit struct {
	Book       *models.Book
	Similarity float64
	// Lexical is set when the record also satisfies the text predicate.
	Lexical bool
}

// ClampSimilarity maps a cosine similarity into [0, 1].
func ClampSimilarity(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(1, s))
}

// ResolveSemantic turns index hits into SemanticHits. Hits with no record, hits outside the
// category filter, and hits at or below minSimilarity are dropped. Order is preserved.
func ResolveSemantic(results []*vector.VectorResult, books map[int64]*models.Book, pred models.Predicate, minSimilarity float64) []SemanticHit {
	hits := make([]SemanticHit, 0, len(results))
	for _, r := range results {
		b, ok := books[r.ID]
		if !ok {
			continue
		}
		if pred.Category != "" && b.Category != pred.Category {
			continue
		}
		sim := ClampSimilarity(r.Score)
		if sim <= minSimilarity {
			continue
		}
		hits = append(hits, SemanticHit{Book: b, Similarity: sim, Lexical: b.MatchesText(pred.Text)})
	}
	return hits
}

// SemanticOnlyCount is the number of hits that are not text matches.
func SemanticOnlyCount(hits []SemanticHit) int {
	n := 0
	for _, h := range hits {
		if !h.Lexical {
			n++
		}
	}
	return n
}

func scoreHit(h SemanticHit, w Weights) *models.ScoredResult {
	if h.Lexical {
		return &models.ScoredResult{Book: h.Book, Score: h.Similarity + w.LexicalBonus, Similarity: h.Similarity, MatchKind: models.MatchBoth}
	}
	return &models.ScoredResult{Book: h.Book, Score: h.Similarity, Similarity: h.Similarity, MatchKind: models.MatchSemantic}
}

// FuseByRelevance merges text matches and semantic hits into one list ordered by score
// descending, then ID ascending. Each record appears once.
func FuseByRelevance(lexical []*models.Book, hits []SemanticHit, w Weights) []*models.ScoredResult {
	seen := make(map[int64]bool, len(hits))
	results := make([]*models.ScoredResult, 0, len(lexical)+len(hits))
	for _, h := range hits {
		seen[h.Book.ID] = true
		results = append(results, scoreHit(h, w))
	}
	for _, b := range lexical {
		if seen[b.ID] {
			continue
		}
		results = append(results, &models.ScoredResult{Book: b, Score: w.LexicalBaseline, MatchKind: models.MatchLexical})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Book.ID < results[j].Book.ID
	})
	return results
}

// FuseByField merges an ordered window of text matches with the semantic-only hits and
// orders the union by key. Semantic hits that are text matches are taken from lexical so
// their position follows the store's ordering.
func FuseByField(lexical []*models.Book, hits []SemanticHit, key models.SortKey, w Weights) []*models.ScoredResult {
	byID := make(map[int64]SemanticHit, len(hits))
	results := make([]*models.ScoredResult, 0, len(lexical)+len(hits))
	for _, h := range hits {
		byID[h.Book.ID] = h
		if !h.Lexical {
			results = append(results, scoreHit(h, w))
		}
	}
	for _, b := range lexical {
		if h, ok := byID[b.ID]; ok && h.Lexical {
			results = append(results, scoreHit(SemanticHit{Book: b, Similarity: h.Similarity, Lexical: true}, w))
			continue
		}
		results = append(results, &models.ScoredResult{Book: b, Score: w.LexicalBaseline, MatchKind: models.MatchLexical})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return models.CompareBooks(results[i].Book, results[j].Book, key) < 0
	})
	return results
}

// LexicalOnly wraps store results that have no semantic component.
func LexicalOnly(books []*models.Book, w Weights) []*models.ScoredResult {
	results := make([]*models.ScoredResult, len(books))
	for i, b := range books {
		results[i] = &models.ScoredResult{Book: b, Score: w.LexicalBaseline, MatchKind: models.MatchLexical}
	}
	return results
}

// Paginate returns the window [offset, offset+size) of results, clamped to its bounds.
func Paginate[T any](results []T, offset, size int) []T {
	start := offset
	end := offset + size
	if start > len(results) {
		start = len(results)
	}
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}
