// Package search provides the hybrid (text + semantic) book search engine.
package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/embedding"
	"github.com/bets3435-dev/book-search-app/internal/metrics"
	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/internal/storage"
	"github.com/bets3435-dev/book-search-app/internal/vector"
)

var searchTracer = otel.Tracer("github.com/bets3435-dev/book-search-app/internal/search")

// Degradation reasons.
const (
	reasonEmbedding = "embedding"
	reasonIndex     = "index"
)

// Engine answers search requests against a record store and a semantic index.
type Engine struct {
	store       storage.RecordStore
	embedder    embedding.Embedder
	vectorIndex vector.VectorIndex
	config      *config.SearchConfig
	logger      *zap.Logger

	// swap is held for reading by every search and for writing while a rebuild is applied.
	swap sync.RWMutex
}

// NewEngine creates a search engine with the given dependencies. A nil logger disables logging.
func NewEngine(
	store storage.RecordStore,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		config:      cfg,
		logger:      logger,
	}
}

// Swap runs fn with searches excluded. Searches started before Swap finish on the old data;
// searches started after it see only the new data.
func (e *Engine) Swap(fn func() error) error {
	e.swap.Lock()
	defer e.swap.Unlock()
	return fn()
}

// Store returns the record store.
func (e *Engine) Store() storage.RecordStore {
	return e.store
}

// VectorIndexSize returns the number of vectors in the semantic index.
func (e *Engine) VectorIndexSize() int {
	return e.vectorIndex.Size()
}

// VectorIndexType returns the semantic index implementation name.
func (e *Engine) VectorIndexType() string {
	return e.vectorIndex.Type()
}

func (e *Engine) weights() Weights {
	return Weights{
		LexicalBonus:    e.config.LexicalBonus,
		LexicalBaseline: e.config.LexicalBaseline,
		MinSimilarity:   e.config.MinSimilarity,
	}
}

// Search runs one request. The request must already carry defaults (see
// models.SearchRequest.ApplyDefaults); Query and Category are trimmed here. Errors are
// *Error values: ErrInvalidRequest or ErrStoreUnavailable. Semantic failures do not fail
// the search; they set Degraded.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	ctx, span := searchTracer.Start(ctx, "search.Engine.Search", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	startTime := time.Now()
	if err := ProcessRequest(req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		metrics.SearchRequestsTotal.WithLabelValues(sortLabel(req), "invalid").Inc()
		return nil, err
	}

	plan := NewPlan(req, e.config)
	span.SetAttributes(
		attribute.Int("search.query_length", len(req.Query)),
		attribute.String("search.sort", string(req.Sort)),
		attribute.Int("search.page", req.Page),
		attribute.Int("search.size", req.PageSize),
		attribute.Bool("search.semantic", plan.Semantic),
	)

	e.swap.RLock()
	defer e.swap.RUnlock()

	var (
		lexicalTotal   int
		lexicalBooks   []*models.Book
		hits           []SemanticHit
		degradedReason string
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		branchStart := time.Now()
		defer observeBranch("lexical", branchStart)
		total, books, err := e.filter(gctx, plan.Predicate, plan.LexicalSort, plan.LexicalLimit, plan.LexicalOffset)
		if err != nil {
			return err
		}
		lexicalTotal, lexicalBooks = total, books
		return nil
	})
	if plan.Semantic {
		group.Go(func() error {
			branchStart := time.Now()
			defer observeBranch("semantic", branchStart)
			h, reason, err := e.semantic(gctx, plan)
			if err != nil {
				return err
			}
			hits, degradedReason = h, reason
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record store unavailable")
		metrics.SearchRequestsTotal.WithLabelValues(string(req.Sort), "error").Inc()
		return nil, err
	}

	w := e.weights()
	degraded := degradedReason != ""
	var (
		total int
		page  []*models.ScoredResult
	)
	switch {
	case !plan.Semantic:
		total = lexicalTotal
		page = LexicalOnly(lexicalBooks, w)
	case plan.Sort == models.SortRelevance && (degraded || len(hits) == 0):
		// No semantic signal: relevance falls back to date order. The lexical fetch was
		// planned in ID order for fusion, so re-page in the fallback order.
		t, books, err := e.filter(ctx, plan.Predicate, models.SortRelevance, plan.PageSize, plan.Offset)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record store unavailable")
			metrics.SearchRequestsTotal.WithLabelValues(string(req.Sort), "error").Inc()
			return nil, err
		}
		total = t
		page = LexicalOnly(books, w)
	case degraded:
		total = lexicalTotal
		page = Paginate(LexicalOnly(lexicalBooks, w), plan.Offset, plan.PageSize)
	case plan.Sort == models.SortRelevance:
		total = lexicalTotal + SemanticOnlyCount(hits)
		page = Paginate(FuseByRelevance(lexicalBooks, hits, w), plan.Offset, plan.PageSize)
	default:
		total = lexicalTotal + SemanticOnlyCount(hits)
		page = Paginate(FuseByField(lexicalBooks, hits, plan.Sort, w), plan.Offset, plan.PageSize)
	}

	resp := buildResponse(req, total, page)
	outcome := "ok"
	if degraded {
		outcome = "degraded"
		resp.Degraded = true
		resp.Warnings = []string{DegradedWarning}
		metrics.SearchDegradedTotal.WithLabelValues(degradedReason).Inc()
		span.SetAttributes(attribute.String("search.degraded_reason", degradedReason))
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Sort), outcome).Inc()
	span.SetAttributes(
		attribute.Int("search.total", total),
		attribute.Int("search.returned", len(resp.Items)),
		attribute.Int("search.semantic_hits", len(hits)),
	)

	e.logger.Debug("Search completed",
		zap.Int("query_length", len(req.Query)),
		zap.String("sort", string(req.Sort)),
		zap.Int("page", req.Page),
		zap.Int("total", total),
		zap.Int("semantic_hits", len(hits)),
		zap.Bool("degraded", degraded),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return resp, nil
}

// filter queries the store under the store timeout and classifies failures.
func (e *Engine) filter(ctx context.Context, pred models.Predicate, sort models.SortKey, limit, offset int) (int, []*models.Book, error) {
	ctx, cancel := withTimeout(ctx, e.config.StoreTimeout)
	defer cancel()
	total, books, err := e.store.Filter(ctx, pred, sort, limit, offset)
	if err != nil {
		e.logger.Error("Record store query failed", zap.Error(err))
		return 0, nil, storeUnavailable(err)
	}
	return total, books, nil
}

// semantic embeds the query, searches the index and resolves hits against the store.
// Embedding and index failures are reported as a degradation reason, not an error.
func (e *Engine) semantic(ctx context.Context, plan Plan) ([]SemanticHit, string, error) {
	ectx, cancel := withTimeout(ctx, e.config.EmbeddingTimeout)
	queryEmbedding, err := e.embedder.Embed(ectx, plan.Query)
	cancel()
	if err != nil {
		e.logger.Warn("Query embedding failed; answering without semantic results",
			zap.String("kind", ErrEmbeddingUnavailable.Error()), zap.Error(err))
		return nil, reasonEmbedding, nil
	}

	ictx, cancel := withTimeout(ctx, e.config.IndexTimeout)
	results, err := e.vectorIndex.Search(ictx, queryEmbedding, plan.K)
	cancel()
	if err != nil {
		e.logger.Warn("Semantic index search failed; answering without semantic results",
			zap.String("kind", ErrIndexUnavailable.Error()), zap.Error(err))
		return nil, reasonIndex, nil
	}
	if len(results) == 0 {
		return nil, "", nil
	}

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	sctx, cancel := withTimeout(ctx, e.config.StoreTimeout)
	defer cancel()
	books, err := e.store.GetBooks(sctx, ids)
	if err != nil {
		e.logger.Error("Record store lookup failed", zap.Error(err))
		return nil, "", storeUnavailable(err)
	}
	return ResolveSemantic(results, books, plan.Predicate, e.config.MinSimilarity), "", nil
}

func buildResponse(req *models.SearchRequest, total int, page []*models.ScoredResult) *models.SearchResponse {
	resp := &models.SearchResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    make([]*models.Book, len(page)),
	}
	if req.IncludeMatches {
		resp.Matches = make([]models.Match, len(page))
	}
	for i, r := range page {
		resp.Items[i] = r.Book
		if req.IncludeMatches {
			resp.Matches[i] = newMatch(r, req.Query)
		}
	}
	return resp
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observeBranch(branch string, start time.Time) {
	metrics.SearchBranchDuration.WithLabelValues(branch).Observe(time.Since(start).Seconds())
}

func sortLabel(req *models.SearchRequest) string {
	if req == nil || !req.Sort.Valid() {
		return "invalid"
	}
	return string(req.Sort)
}

// IsInvalidRequest reports whether err is an ErrInvalidRequest.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
