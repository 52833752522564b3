// Package server provides the HTTP API for the book search service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/acquire"
	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/indexer"
	"github.com/bets3435-dev/book-search-app/internal/metrics"
	"github.com/bets3435-dev/book-search-app/internal/search"
)

const requestTimeout = 60 * time.Second

// Acquirer looks up listings in an external catalog.
type Acquirer interface {
	Search(ctx context.Context, query string, page, maxItems int) (*acquire.Batch, error)
}

// Server is the HTTP server for the search API.
type Server struct {
	engine   *search.Engine
	indexer  *indexer.Indexer
	acquirer Acquirer
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. idx and acq may be nil, which
// disables the ingest and external search endpoints.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	acq Acquirer,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		indexer:  idx,
		acquirer: acq,
		config:   cfg,
		logger:   logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	metrics.Register()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.Timeout(requestTimeout)).Get("/search", s.handleSearchQuery)
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Post("/search", s.handleSearch)
			r.Get("/books/{id}", s.handleGetBook)
			r.Get("/categories", s.handleCategories)
			r.Get("/status", s.handleStatus)
			r.Get("/external/search", s.handleExternalSearch)
		})
		// Rebuilds outlive the request timeout.
		r.Post("/ingest", s.handleIngest)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
