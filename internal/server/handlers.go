package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/indexer"
	"github.com/bets3435-dev/book-search-app/internal/ingest"
	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/internal/search"
	"github.com/bets3435-dev/book-search-app/internal/storage"
)

// searchBody is the JSON form of a search. Pointers distinguish absent paging from zero.
type searchBody struct {
	Query          string `json:"q"`
	Category       string `json:"category"`
	Sort           string `json:"sort"`
	Page           *int   `json:"page"`
	Size           *int   `json:"size"`
	IncludeMatches bool   `json:"include_matches"`
}

func (s *Server) newRequest(b searchBody) *models.SearchRequest {
	req := &models.SearchRequest{
		Query:          b.Query,
		Category:       b.Category,
		Sort:           models.SortKey(strings.ToLower(strings.TrimSpace(b.Sort))),
		IncludeMatches: b.IncludeMatches,
		Page:           1,
		PageSize:       s.config.Search.DefaultPageSize,
	}
	if b.Page != nil {
		req.Page = *b.Page
	}
	if b.Size != nil {
		req.PageSize = *b.Size
	}
	req.Query = strings.TrimSpace(req.Query)
	req.Category = strings.TrimSpace(req.Category)
	if req.Sort == "" {
		req.Sort = models.SortRelevance
	}
	return req
}

// handleSearchQuery serves GET /search?q=&category=&sort=&page=&size=&matches=.
func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := searchBody{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
	}
	var err error
	if body.Page, err = intParam(q, "page"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Size, err = intParam(q, "size"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v := q.Get("matches"); v != "" {
		if body.IncludeMatches, err = strconv.ParseBool(v); err != nil {
			s.respondError(w, http.StatusBadRequest, "matches must be a boolean")
			return
		}
	}
	s.search(w, r, s.newRequest(body))
}

// handleSearch serves POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, s.newRequest(body))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, req *models.SearchRequest) {
	if limit := s.config.Search.MaxPageSize; limit > 0 && req.PageSize > limit {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("size must be between 1 and %d, got %d", limit, req.PageSize))
		return
	}
	resp, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrStoreUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, search.ErrStoreUnavailable.Error())
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		s.respondError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	book, err := s.engine.Store().GetBook(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		s.logger.Error("get book failed", zap.Int64("id", id), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, search.ErrStoreUnavailable.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.engine.Store().Categories(r.Context())
	if err != nil {
		s.logger.Error("list categories failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, search.ErrStoreUnavailable.Error())
		return
	}
	if cats == nil {
		cats = []models.CategoryCount{}
	}
	for i := range cats {
		cats[i].Class = models.KDCClass(cats[i].Category)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.Store().Count(r.Context())
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, search.ErrStoreUnavailable.Error())
		return
	}
	cfg := s.config
	resp := map[string]any{
		"records":           count,
		"vector_index_size": s.engine.VectorIndexSize(),
		"config": map[string]any{
			"storage_backend":      cfg.Storage.Backend,
			"vector_index_type":    s.engine.VectorIndexType(),
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"database_path":        cfg.Storage.DatabasePath,
			"bleve_index_path":     cfg.Storage.BleveIndexPath,
			"vector_index_path":    cfg.Storage.VectorIndexPath,
			"ingest_source":        cfg.Ingest.SourcePath,
			"ingest_watch":         cfg.Ingest.Watch,
		},
	}
	if usage, err := storage.MeasureDiskUsage(&cfg.Storage); err == nil {
		resp["disk_usage_bytes"] = usage.Total
		resp["disk_usage"] = usage
	} else {
		s.logger.Warn("status: measure disk usage failed", zap.Error(err))
	}
	if s.indexer != nil {
		if last := s.indexer.LastReport(); last != nil {
			resp["last_ingest"] = last
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.respondError(w, http.StatusNotImplemented, "ingestion not enabled")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = s.config.Ingest.SourcePath
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (no ingest.source_path configured)")
		return
	}

	s.logger.Info("ingest request", zap.String("path", path))
	report, err := s.indexer.IndexFile(context.WithoutCancel(r.Context()), path)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, report)
	case errors.Is(err, indexer.ErrIngestInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		s.respondError(w, http.StatusNotFound, "source file not found")
	case errors.Is(err, ingest.ErrMissingColumns), errors.Is(err, ingest.ErrUnsupportedFormat):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "ingestion failed")
	}
}

func (s *Server) handleExternalSearch(w http.ResponseWriter, r *http.Request) {
	if s.acquirer == nil {
		s.respondError(w, http.StatusNotImplemented, "external search not enabled")
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	page, err := intParam(q, "page")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxParam, err := intParam(q, "max")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, m := 1, 0
	if page != nil {
		p = *page
	}
	if maxParam != nil {
		m = *maxParam
	}
	if p < 1 || m < 0 {
		s.respondError(w, http.StatusBadRequest, "page must be >= 1 and max >= 0")
		return
	}

	batch, err := s.acquirer.Search(r.Context(), query, p, m)
	if err != nil {
		s.logger.Warn("external search failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "external catalog unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, batch)
}

func intParam(q url.Values, name string) (*int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
