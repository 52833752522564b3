// Package main is the booksearch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/acquire"
	"github.com/bets3435-dev/book-search-app/internal/cli"
	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/internal/server"
	"github.com/bets3435-dev/book-search-app/internal/storage"
	"github.com/bets3435-dev/book-search-app/internal/watcher"
	"github.com/bets3435-dev/book-search-app/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/booksearch/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists; when neither exists the built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", cfg.Validate()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "acquire":
		runAcquire()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("booksearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)
	if err := checkServable(cfg); err != nil {
		logger.Fatal("Unsupported server configuration", zap.Error(err))
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := cfg.Ingest.SourcePath
	if source != "" {
		if count, err := components.Store.Count(ctx); err == nil && count == 0 {
			if report, err := components.Indexer.IndexFile(ctx, source); err != nil {
				logger.Warn("initial ingest failed", zap.String("path", source), zap.Error(err))
			} else {
				logger.Info("initial ingest finished", zap.Int("records", report.Records))
			}
		}
	}

	if cfg.Ingest.Watch && source != "" {
		watchSvc, err := watcher.NewWatcher([]string{source}, func(path string) {
			if _, err := components.Indexer.IndexFile(context.Background(), path); err != nil {
				logger.Warn("re-ingest after change failed", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithLogger(logger.Named("watcher")))
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	var acq server.Acquirer
	if client, err := newAcquirer(cfg, logger); err != nil {
		logger.Warn("external search disabled", zap.Error(err))
	} else {
		acq = client
	}

	srv := server.NewServer(components.Engine, components.Indexer, acq, cfg, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: booksearch search [flags] [query]\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. An empty query lists the catalogue.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  booksearch search python
  booksearch search --category 004 --sort date
  booksearch search --page 2 --size 10 --matches 파이썬
  booksearch search --output json "machine learning"
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (empty = search the local store directly)`)
	category := fs.String("category", "", "exact category code to filter by")
	sortKey := fs.String("sort", "relevance", "relevance, title, author or date")
	page := fs.Int("page", 1, "1-based page number")
	size := fs.Int("size", 20, "results per page")
	matches := fs.Bool("matches", false, "include score and match kind per result")
	outputFormat := fs.String("output", "text", "output format: text, compact or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil || format == cli.OutputCSV {
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text, compact or json\n", *outputFormat)
		os.Exit(1)
	}
	sortBy, err := models.ParseSortKey(*sortKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.SearchRequest{
		Query:          buildSearchQuery(fs.Args()),
		Category:       *category,
		Sort:           sortBy,
		Page:           *page,
		PageSize:       *size,
		IncludeMatches: *matches,
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The running server holds the store; go through its API.
		response, err = searchViaHTTP(*serverURL, req)
	} else {
		response, err = searchDirect(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, req *models.SearchRequest) (*models.SearchResponse, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(context.Background(), req)
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	q := url.Values{}
	q.Set("q", req.Query)
	if req.Category != "" {
		q.Set("category", req.Category)
	}
	q.Set("sort", string(req.Sort))
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("size", strconv.Itoa(req.PageSize))
	if req.IncludeMatches {
		q.Set("matches", "true")
	}
	var response models.SearchResponse
	if err := getJSON(serverURL+"/search?"+q.Encode(), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func getJSON(rawURL string, out any) error {
	resp, err := http.Get(rawURL)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = rebuild the local store directly)")
	charset := fs.String("encoding", "", "CSV encoding, e.g. euc-kr (default from config)")
	_ = fs.Parse(os.Args[2:])

	path := fs.Arg(0)
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	var report map[string]any
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]string{"path": path})
		resp, err := http.Post(*serverURL+"/api/v1/ingest", "application/json", bytes.NewReader(body))
		if err == nil {
			err = decodeResponse(resp, &report)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		if path == "" {
			path = cfg.Ingest.SourcePath
		}
		if *charset != "" {
			cfg.Ingest.Encoding = *charset
		}
		if path == "" {
			fmt.Println("Usage: booksearch ingest [flags] <file.csv|file.xlsx>")
			os.Exit(1)
		}
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		r, err := components.Indexer.IndexFile(context.Background(), path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		data, _ := json.Marshal(r)
		_ = json.Unmarshal(data, &report)
	}
	fmt.Printf("Ingested %v records (%v embedded, %v without text) from %v\n",
		report["records"], report["embedded"], report["no_text"], report["source"])
	fmt.Printf("batch_id: %v\n", report["batch_id"])
}

func runAcquire() {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	page := fs.Int("page", 1, "result page to fetch")
	limit := fs.Int("max", 0, "maximum listings to keep (0 = acquire.max_results)")
	isbn := fs.Bool("isbn", false, "treat the query as an ISBN")
	bestsellers := fs.Bool("bestsellers", false, "fetch the bestseller list instead of searching")
	outputFormat := fs.String("output", "text", "output format: text, compact, json or csv")
	outPath := fs.String("out", "", "write output to this file instead of stdout")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" && !*bestsellers {
		fmt.Println("Usage: booksearch acquire [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	client, err := newAcquirer(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	var batch *acquire.Batch
	switch {
	case *bestsellers:
		batch, err = client.Bestsellers(ctx, *page)
	case *isbn:
		batch, err = client.SearchByISBN(ctx, query)
	default:
		batch, err = client.Search(ctx, query, *page, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Acquire failed: %v\n", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := cli.WriteBatch(w, batch, format, cfg.Ingest.Columns); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if *outPath != "" {
		fmt.Printf("Wrote %d records to %s (%d skipped)\n", batch.Report.Accepted, *outPath, batch.Report.Skipped)
	}
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Records         int                `json:"records"`
	VectorIndexSize int                `json:"vector_index_size"`
	DiskUsageBytes  *int64             `json:"disk_usage_bytes,omitempty"`
	DiskUsage       *storage.DiskUsage `json:"disk_usage,omitempty"`
	Config          map[string]any     `json:"config,omitempty"`
	LastIngest      map[string]any     `json:"last_ingest,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		count, err := components.Store.Count(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count records failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Records:         count,
			VectorIndexSize: components.Engine.VectorIndexSize(),
			Config: map[string]any{
				"storage_backend":    cfg.Storage.Backend,
				"vector_index_type":  components.Engine.VectorIndexType(),
				"embedding_provider": cfg.Embedding.Provider,
				"database_path":      storePath(cfg),
				"vector_index_path":  cfg.Storage.VectorIndexPath,
				"ingest_source":      cfg.Ingest.SourcePath,
			},
		}
		if usage, err := storage.MeasureDiskUsage(&cfg.Storage); err == nil {
			status.DiskUsageBytes = &usage.Total
			status.DiskUsage = &usage
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, &status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "records:            %d\n", status.Records)
	fmt.Fprintf(w, "vector_index_size:  %d\n", status.VectorIndexSize)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
	if u := status.DiskUsage; u != nil {
		fmt.Fprintf(w, "  record_store:     %d\n", u.RecordStore)
		fmt.Fprintf(w, "  vector_index:     %d\n", u.VectorIndex)
		fmt.Fprintf(w, "  embedding_cache:  %d\n", u.EmbeddingCache)
	}
	if status.LastIngest != nil {
		fmt.Fprintf(w, "last_ingest:        %v (%v records)\n", status.LastIngest["finished_at"], status.LastIngest["records"])
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := status.Config[k]; v != "" && v != nil {
				fmt.Fprintf(w, "%-21s %v\n", k+":", v)
			}
		}
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", *path)
		os.Exit(1)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	// Never persist a key picked up from the environment.
	cfg.Embedding.OpenAI.APIKey = ""
	if err := config.Save(*path, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", *path)
}

func printUsage() {
	fmt.Println(`booksearch - hybrid lexical and semantic book search

Usage:
  booksearch server [flags]            Start the HTTP server
  booksearch search [flags] [query]    Search the catalogue
  booksearch ingest [flags] [file]     Rebuild the catalogue from a CSV or XLSX file
  booksearch acquire [flags] <query>   Fetch listings from the external bookstore
  booksearch status [flags]            Show record count, index size and configuration
  booksearch init [flags]              Write a default config file
  booksearch version                   Show version
  booksearch help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/booksearch/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8000). Use --server "" to search the local store.
  --category string  Exact category code
  --sort string      relevance, title, author or date (default: relevance)
  --page int         Page number (default: 1)
  --size int         Results per page (default: 20)
  --matches          Show score and match kind per result
  --output string    text, compact or json (default: text)

Ingest Flags:
  --config string    Config file path; the file defaults to ingest.source_path
  --server string    Ask a running server to ingest instead of writing the store directly
  --encoding string  CSV encoding, e.g. utf-8 or euc-kr (default: ingest.encoding)

Acquire Flags:
  --page int         Result page (default: 1)
  --max int          Maximum listings to keep
  --isbn             Look up a single ISBN
  --bestsellers      Fetch the bestseller list
  --output string    text, compact, json or csv (default: text)
  --out string       Write to a file; csv output can be ingested directly

Examples:
  booksearch server
  booksearch ingest ./data/books.csv
  booksearch search 파이썬
  booksearch search --sort date --category 004 python
  booksearch acquire --output csv --out new.csv "data science"
  booksearch status --output json`)
}
