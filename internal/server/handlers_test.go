package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/acquire"
	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/embedding"
	"github.com/bets3435-dev/book-search-app/internal/indexer"
	"github.com/bets3435-dev/book-search-app/internal/ingest"
	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/internal/search"
	"github.com/bets3435-dev/book-search-app/internal/storage"
	"github.com/bets3435-dev/book-search-app/internal/vector"
)

const catalogCSV = "title,author,publisher,category,publish_date,description\n" +
	"Python Basics,Kim,Hanbit,004,2019-03-01,intro\n" +
	"Advanced Python,Lee,Wiley,004,2021-06-15,deep dive\n" +
	"Java Guide,Park,Wiley,005,2020-01-01,\n" +
	"Home Cooking,Han,Maeil,594,2017-07-07,recipes\n"

type fakeAcquirer struct {
	batch *acquire.Batch
	err   error
	got   struct {
		query     string
		page, limit int
	}
}

func (f *fakeAcquirer) Search(_ context.Context, query string, page, limit int) (*acquire.Batch, error) {
	f.got.query, f.got.page, f.got.limit = query, page, limit
	return f.batch, f.err
}

type brokenStore struct {
	storage.RecordStore
}

func (brokenStore) Filter(context.Context, models.Predicate, models.SortKey, int, int) (int, []*models.Book, error) {
	return 0, nil, errors.New("database is locked")
}

func (brokenStore) Categories(context.Context) ([]models.CategoryCount, error) {
	return nil, errors.New("database is locked")
}

type testEnv struct {
	server  *Server
	http    *httptest.Server
	cfg     *config.Config
	catalog string
	acq     *fakeAcquirer
}

func newTestEnv(t *testing.T, store storage.RecordStore) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = 64
	// Keep hash collisions out of the assertions below.
	cfg.Search.MinSimilarity = 0.99
	cfg.Storage.DatabasePath = filepath.Join(dir, "books.db")
	cfg.Storage.BleveIndexPath = ""
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.Storage.EmbeddingCachePath = ""
	cfg.Ingest.SourcePath = filepath.Join(dir, "books.csv")
	if err := os.WriteFile(cfg.Ingest.SourcePath, []byte(catalogCSV), 0600); err != nil {
		t.Fatal(err)
	}

	if store == nil {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}
	emb := embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	vecs, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	engine := search.NewEngine(store, emb, vecs, &cfg.Search, zap.NewNop())
	loader, err := ingest.NewLoader(&cfg.Ingest)
	if err != nil {
		t.Fatal(err)
	}
	idx := indexer.NewIndexer(store, emb, vecs, engine, &cfg.Ingest,
		indexer.WithLoader(loader), indexer.WithVectorPath(cfg.Storage.VectorIndexPath))

	acq := &fakeAcquirer{}
	srv := NewServer(engine, idx, acq, cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: srv, http: ts, cfg: cfg, catalog: cfg.Ingest.SourcePath, acq: acq}
}

func (e *testEnv) ingest(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/ingest", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", resp.StatusCode, body)
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeSearch(t *testing.T, data []byte) *models.SearchResponse {
	t.Helper()
	var out models.SearchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v\n%s", err, data)
	}
	return &out
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	resp, body := e.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"ok"`)) {
		t.Errorf("health = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestSearchQuery(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ingest(t)

	resp, body := e.do(t, http.MethodGet, "/search?q=python&sort=title", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decodeSearch(t, body)
	if out.Total != 2 || out.Page != 1 || out.PageSize != 20 {
		t.Errorf("response = %+v", out)
	}
	if len(out.Items) != 2 || out.Items[0].Title != "Advanced Python" || out.Items[1].Title != "Python Basics" {
		t.Errorf("items = %+v", out.Items)
	}
	if out.Matches != nil {
		t.Error("matches should be omitted unless requested")
	}
}

func TestSearchQuery_CategoryAndPaging(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ingest(t)

	_, body := e.do(t, http.MethodGet, "/search?category=004&page=2&size=1&matches=true", "")
	out := decodeSearch(t, body)
	if out.Total != 2 || len(out.Items) != 1 || out.Items[0].Title != "Python Basics" {
		t.Errorf("response = %+v", out)
	}
	if len(out.Matches) != 1 || out.Matches[0].MatchKind != models.MatchLexical {
		t.Errorf("matches = %+v", out.Matches)
	}
}

func TestSearch_BadRequests(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, path := range []string{
		"/search?page=0",
		"/search?page=abc",
		"/search?size=0",
		"/search?size=101",
		"/search?sort=price",
		"/search?matches=maybe",
	} {
		resp, body := e.do(t, http.MethodGet, path, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
		}
		if !bytes.Contains(body, []byte(`"error"`)) {
			t.Errorf("%s: body = %s", path, body)
		}
	}

	resp, _ := e.do(t, http.MethodPost, "/api/v1/search", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/api/v1/search", `{"q":"x","page":0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("explicit page 0: status = %d", resp.StatusCode)
	}
}

func TestSearchPost(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ingest(t)

	resp, body := e.do(t, http.MethodPost, "/api/v1/search", `{"q":"PYTHON","sort":"date","include_matches":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decodeSearch(t, body)
	if len(out.Items) != 2 || out.Items[0].Title != "Advanced Python" {
		t.Errorf("items = %+v", out.Items)
	}
	if len(out.Matches) != len(out.Items) {
		t.Errorf("matches = %d, items = %d", len(out.Matches), len(out.Items))
	}
}

func TestSearch_StoreUnavailable(t *testing.T) {
	s, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	e := newTestEnv(t, brokenStore{s})

	resp, body := e.do(t, http.MethodGet, "/search?q=python", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if bytes.Contains(body, []byte("locked")) {
		t.Errorf("body leaks cause: %s", body)
	}
	resp, _ = e.do(t, http.MethodGet, "/api/v1/categories", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("categories status = %d, want 503", resp.StatusCode)
	}
}

func TestGetBook(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ingest(t)

	resp, body := e.do(t, http.MethodGet, "/api/v1/books/2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var b models.Book
	if err := json.Unmarshal(body, &b); err != nil {
		t.Fatal(err)
	}
	if b.ID != 2 || b.Title != "Advanced Python" {
		t.Errorf("book = %+v", b)
	}

	if resp, _ := e.do(t, http.MethodGet, "/api/v1/books/99", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing book status = %d", resp.StatusCode)
	}
	if resp, _ := e.do(t, http.MethodGet, "/api/v1/books/abc", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
}

func TestCategories(t *testing.T) {
	e := newTestEnv(t, nil)

	_, body := e.do(t, http.MethodGet, "/api/v1/categories", "")
	if !bytes.Contains(body, []byte(`"categories":[]`)) {
		t.Errorf("empty categories body = %s", body)
	}

	e.ingest(t)
	_, body = e.do(t, http.MethodGet, "/api/v1/categories", "")
	var out struct {
		Categories []models.CategoryCount `json:"categories"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Categories) != 3 {
		t.Fatalf("categories = %+v", out.Categories)
	}
	classes := map[string]string{}
	for _, c := range out.Categories {
		classes[c.Category] = c.Class
	}
	want := map[string]string{"004": "총류", "005": "총류", "594": "기술과학"}
	for code, class := range want {
		if classes[code] != class {
			t.Errorf("class of %s = %q, want %q", code, classes[code], class)
		}
	}
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t, nil)
	e.ingest(t)

	_, body := e.do(t, http.MethodGet, "/api/v1/status", "")
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out["records"] != float64(4) || out["vector_index_size"] != float64(4) {
		t.Errorf("status = %v", out)
	}
	if _, ok := out["last_ingest"]; !ok {
		t.Error("missing last_ingest")
	}
	if _, ok := out["disk_usage_bytes"]; !ok {
		t.Error("missing disk_usage_bytes")
	}
	usage, ok := out["disk_usage"].(map[string]any)
	if !ok {
		t.Fatalf("disk_usage = %v", out["disk_usage"])
	}
	if usage["record_store"].(float64) <= 0 || usage["vector_index"].(float64) <= 0 {
		t.Errorf("disk_usage = %v", usage)
	}
	if usage["total"] != out["disk_usage_bytes"] {
		t.Errorf("total %v != disk_usage_bytes %v", usage["total"], out["disk_usage_bytes"])
	}
}

func TestIngest(t *testing.T) {
	e := newTestEnv(t, nil)

	resp, body := e.do(t, http.MethodPost, "/api/v1/ingest", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var report indexer.Report
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatal(err)
	}
	if report.Records != 4 || report.BatchID == "" || report.Source != e.catalog {
		t.Errorf("report = %+v", report)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/v1/ingest", `{"path":"/nonexistent/books.csv"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", resp.StatusCode)
	}

	bad := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(bad, []byte("title,author\nx,y\n"), 0600); err != nil {
		t.Fatal(err)
	}
	resp, body = e.do(t, http.MethodPost, "/api/v1/ingest", `{"path":"`+bad+`"}`)
	if resp.StatusCode != http.StatusBadRequest || !bytes.Contains(body, []byte("publisher")) {
		t.Errorf("missing columns: %d %s", resp.StatusCode, body)
	}

	// The failed loads left the first dataset live.
	_, body = e.do(t, http.MethodGet, "/search", "")
	if out := decodeSearch(t, body); out.Total != 4 {
		t.Errorf("total after failed ingests = %d, want 4", out.Total)
	}
}

func TestExternalSearch(t *testing.T) {
	e := newTestEnv(t, nil)
	e.acq.batch = &acquire.Batch{Query: "go", Page: 2}

	resp, body := e.do(t, http.MethodGet, "/api/v1/external/search?q=go&page=2&max=5", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if e.acq.got.query != "go" || e.acq.got.page != 2 || e.acq.got.limit != 5 {
		t.Errorf("acquirer got %+v", e.acq.got)
	}

	if resp, _ := e.do(t, http.MethodGet, "/api/v1/external/search", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q status = %d", resp.StatusCode)
	}
	e.acq.err = errors.New("timeout")
	if resp, _ := e.do(t, http.MethodGet, "/api/v1/external/search?q=go", ""); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upstream failure status = %d", resp.StatusCode)
	}
}

func preflight(t *testing.T, url, origin string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodOptions, url, nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := preflight(t, e.http.URL+"/api/v1/search", "http://localhost:3000")
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost) {
		t.Errorf("allow methods = %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	e := newTestEnv(t, nil)
	e.cfg.Server.CORSOrigins = []string{"https://books.example.com"}
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()

	resp := preflight(t, ts.URL+"/api/v1/search", "https://books.example.com")
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://books.example.com" {
		t.Errorf("allowed origin header = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	got, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", got.StatusCode)
	}
	if got.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin should not be allowed")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, http.MethodGet, "/health", "")

	resp, body := e.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("booksearch_http_requests_total")) {
		t.Error("http request metrics missing")
	}
}

type panickingStore struct {
	storage.RecordStore
}

func (panickingStore) Categories(context.Context) ([]models.CategoryCount, error) {
	panic("boom")
}

func TestRecoverer(t *testing.T) {
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	e := newTestEnv(t, panickingStore{s})

	resp, _ := e.do(t, http.MethodGet, "/api/v1/categories", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("recovered status = %d", resp.StatusCode)
	}
	if resp, _ := e.do(t, http.MethodGet, "/health", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("server unusable after panic: %d", resp.StatusCode)
	}
}
