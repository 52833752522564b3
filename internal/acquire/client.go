// Package acquire fetches book listings from a Yes24-style online bookstore.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/metrics"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

// SourceName is stored in Book.Extras[models.ExtraSource] for acquired records.
const SourceName = "yes24"

const (
	bestsellerPath     = "/24/Category/BestSeller"
	bestsellerCategory = "001"
	maxBodyBytes       = 8 << 20
)

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("query is required")

// Client searches the bookstore. Requests are paced by a shared limiter.
type Client struct {
	http         *http.Client
	base         *url.URL
	searchPath   string
	userAgent    string
	limiter      *rate.Limiter
	maxResults   int
	fetchDetails bool
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets a logger for per-item diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a client for cfg.
func NewClient(cfg *config.AcquireConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", cfg.BaseURL)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		base:         base,
		searchPath:   cfg.SearchPath,
		userAgent:    cfg.UserAgent,
		limiter:      rate.NewLimiter(limit, 1),
		maxResults:   cfg.MaxResults,
		fetchDetails: cfg.FetchDetails,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search fetches one result page for query and extracts at most maxItems items (the configured
// maximum when maxItems <= 0). Per-item failures are reported in the batch, not returned.
func (c *Client) Search(ctx context.Context, query string, page, maxItems int) (*Batch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"Query":        {query},
		"QueryType":    {"GOODS"},
		"SearchTarget": {"BOOK"},
		"Page":         {strconv.Itoa(page)},
		"Sort":         {"ACCURACY"},
	}
	batch, err := c.list(ctx, c.searchPath, params, maxItems)
	if err != nil {
		return nil, err
	}
	batch.Query, batch.Page = query, page
	return batch, nil
}

// SearchByISBN looks up a single ISBN.
func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*Batch, error) {
	return c.Search(ctx, isbn, 1, 5)
}

// Bestsellers fetches one page of the bestseller list.
func (c *Client) Bestsellers(ctx context.Context, page int) (*Batch, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"CategoryNumber": {bestsellerCategory},
		"Page":           {strconv.Itoa(page)},
	}
	batch, err := c.list(ctx, bestsellerPath, params, 0)
	if err != nil {
		return nil, err
	}
	batch.Page = page
	return batch, nil
}

func (c *Client) list(ctx context.Context, path string, params url.Values, maxItems int) (*Batch, error) {
	if maxItems <= 0 {
		maxItems = c.maxResults
	}
	doc, err := c.fetch(ctx, c.resolve(path), params)
	if err != nil {
		return nil, err
	}
	items := parseSearchResults(doc, c.base, maxItems)
	if c.fetchDetails {
		for i := range items {
			if items[i].Err != nil {
				continue
			}
			if err := c.addDetail(ctx, items[i].Book); err != nil {
				items[i] = Item{Index: items[i].Index, Err: &ExtractError{Index: items[i].Index, Reason: ReasonDetail, Err: err}}
			}
		}
	}
	batch := newBatch(items)
	metrics.AcquireItemsTotal.WithLabelValues("accepted").Add(float64(batch.Report.Accepted))
	metrics.AcquireItemsTotal.WithLabelValues("skipped").Add(float64(batch.Report.Skipped))
	for _, it := range batch.Items {
		if it.Err != nil {
			c.logger.Debug("Skipped catalog item", zap.Int("index", it.Index), zap.Error(it.Err))
		}
	}
	return batch, nil
}

// addDetail fetches the product page linked from b and fills the description and publish date of b.
func (c *Client) addDetail(ctx context.Context, b *models.Book) error {
	link := b.Extras[models.ExtraLink]
	if link == "" {
		return errors.New("item has no link")
	}
	doc, err := c.fetch(ctx, link, nil)
	if err != nil {
		return err
	}
	d := parseDetail(doc)
	if d.Description != "" {
		b.Description = d.Description
	}
	if d.PublishDate != "" {
		b.PublishDate = d.PublishDate
	}
	return nil
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String()
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) fetch(ctx context.Context, rawURL string, params url.Values) (*html.Node, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
