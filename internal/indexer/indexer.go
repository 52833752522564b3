// Package indexer rebuilds the record store and the semantic index from a full dataset.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/embedding"
	"github.com/bets3435-dev/book-search-app/internal/metrics"
	"github.com/bets3435-dev/book-search-app/internal/models"
	"github.com/bets3435-dev/book-search-app/internal/storage"
	"github.com/bets3435-dev/book-search-app/internal/vector"
)

var indexTracer = otel.Tracer("github.com/bets3435-dev/book-search-app/internal/indexer")

// ErrIngestInProgress is returned when a rebuild is requested while another is running.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Swapper applies a dataset change with searches excluded. *search.Engine implements it.
type Swapper interface {
	Swap(fn func() error) error
}

// Loader reads a source file into records.
type Loader interface {
	Load(ctx context.Context, path string) ([]*models.Book, error)
}

// Report summarizes one rebuild.
type Report struct {
	BatchID  string `json:"batch_id"`
	Source   string `json:"source,omitempty"`
	Records  int    `json:"records"`
	Embedded int    `json:"embedded"`
	// NoText counts records with nothing to embed; they are searchable by text only.
	NoText     int           `json:"no_text"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Indexer rebuilds the dataset. At most one rebuild runs at a time.
type Indexer struct {
	store       storage.RecordStore
	embedder    embedding.Embedder
	vectorIndex vector.VectorIndex
	swapper     Swapper
	loader      Loader
	vectorPath  string
	batchSize   int
	workers     int
	logger      *zap.Logger

	running sync.Mutex

	lastMu sync.RWMutex
	last   *Report
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithLoader sets the loader used by IndexFile.
func WithLoader(l Loader) IndexerOption {
	return func(idx *Indexer) { idx.loader = l }
}

// WithVectorPath persists the semantic index to path after every rebuild.
func WithVectorPath(path string) IndexerOption {
	return func(idx *Indexer) { idx.vectorPath = path }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	store storage.RecordStore,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	swapper Swapper,
	cfg *config.IngestConfig,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		store:       store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		swapper:     swapper,
		batchSize:   cfg.BatchSize,
		workers:     cfg.Workers,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.batchSize < 1 {
		idx.batchSize = 1
	}
	if idx.workers < 1 {
		idx.workers = 1
	}
	return idx
}

// LastReport returns the report of the most recent successful rebuild, or nil.
func (idx *Indexer) LastReport() *Report {
	idx.lastMu.RLock()
	defer idx.lastMu.RUnlock()
	return idx.last
}

// IndexFile loads path with the configured loader and rebuilds from it.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*Report, error) {
	if idx.loader == nil {
		return nil, errors.New("no loader configured")
	}
	books, err := idx.loader.Load(ctx, path)
	if err != nil {
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	report, err := idx.Rebuild(ctx, books)
	if report != nil {
		report.Source = path
	}
	return report, err
}

// Rebuild replaces the whole dataset with books. Records get IDs 1..N in input order.
// Searches see either the old dataset or the new one, never a mix. On error the old
// dataset stays live.
func (idx *Indexer) Rebuild(ctx context.Context, books []*models.Book) (*Report, error) {
	if !idx.running.TryLock() {
		metrics.IngestRunsTotal.WithLabelValues("busy").Inc()
		return nil, ErrIngestInProgress
	}
	defer idx.running.Unlock()

	ctx, span := indexTracer.Start(ctx, "indexer.Rebuild",
		trace.WithAttributes(attribute.Int("ingest.input_records", len(books))))
	defer span.End()

	report, err := idx.rebuild(ctx, books)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebuild failed")
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		idx.logger.Error("Rebuild failed", zap.Error(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("ingest.batch_id", report.BatchID),
		attribute.Int("ingest.records", report.Records),
	)
	metrics.IngestRunsTotal.WithLabelValues("ok").Inc()
	metrics.IndexedRecords.Set(float64(report.Records))

	idx.lastMu.Lock()
	idx.last = report
	idx.lastMu.Unlock()
	return report, nil
}

func (idx *Indexer) rebuild(ctx context.Context, input []*models.Book) (*Report, error) {
	start := time.Now()
	report := &Report{BatchID: uuid.New().String(), Records: len(input)}
	logger := idx.logger.With(zap.String("batch_id", report.BatchID))
	logger.Info("Rebuild started", zap.Int("records", len(input)))

	if d := idx.embedder.Dimensions(); d != idx.vectorIndex.Dimensions() {
		return nil, fmt.Errorf("embedder produces %d dimensions, index expects %d", d, idx.vectorIndex.Dimensions())
	}

	books := make([]*models.Book, len(input))
	for i, b := range input {
		books[i] = normalizeBook(b, int64(i+1))
	}

	ids, vectors, err := idx.embedAll(ctx, books)
	if err != nil {
		return nil, fmt.Errorf("embed records: %w", err)
	}
	report.Embedded = len(ids)
	report.NoText = len(books) - len(ids)

	rep, err := idx.store.BeginReplace(ctx, books)
	if err != nil {
		return nil, fmt.Errorf("stage records: %w", err)
	}
	err = idx.swapper.Swap(func() error {
		if err := rep.Commit(); err != nil {
			return fmt.Errorf("commit records: %w", err)
		}
		if err := idx.vectorIndex.Replace(ctx, ids, vectors); err != nil {
			logger.Error("Records committed but semantic index swap failed", zap.Error(err))
			return fmt.Errorf("replace semantic index: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = rep.Rollback()
		return nil, err
	}

	if idx.vectorPath != "" {
		if err := idx.vectorIndex.Save(idx.vectorPath); err != nil {
			return nil, fmt.Errorf("persist semantic index: %w", err)
		}
	}

	report.Duration = time.Since(start)
	report.FinishedAt = time.Now()
	logger.Info("Rebuild finished",
		zap.Int("records", report.Records),
		zap.Int("embedded", report.Embedded),
		zap.Int("no_text", report.NoText),
		zap.Duration("elapsed", report.Duration),
	)
	return report, nil
}

// embedAll embeds every record with text, batchSize records per provider call, on a pool
// of workers. The returned ids are ascending. Records the provider finds empty are left out.
func (idx *Indexer) embedAll(ctx context.Context, books []*models.Book) ([]int64, [][]float32, error) {
	type slot struct {
		id   int64
		text string
	}
	slots := make([]slot, 0, len(books))
	for _, b := range books {
		if text := b.EmbeddingText(); text != "" {
			slots = append(slots, slot{id: b.ID, text: text})
		}
	}
	if len(slots) == 0 {
		return nil, nil, nil
	}

	pool, err := ants.NewPool(idx.workers)
	if err != nil {
		return nil, nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(slots))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for lo := 0; lo < len(slots); lo += idx.batchSize {
		lo := lo
		hi := min(lo+idx.batchSize, len(slots))
		texts := make([]string, hi-lo)
		for i := range texts {
			texts[i] = slots[lo+i].text
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			out, err := idx.embedder.EmbedBatch(ctx, texts)
			if errors.Is(err, embedding.ErrEmptyText) {
				out, err = idx.embedEach(ctx, texts)
			}
			if err != nil {
				fail(err)
				return
			}
			if len(out) != len(texts) {
				fail(fmt.Errorf("provider returned %d embeddings for %d texts", len(out), len(texts)))
				return
			}
			copy(vectors[lo:hi], out)
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Checked before anything is committed: the store and the index must change together.
	dims := idx.vectorIndex.Dimensions()
	ids := make([]int64, 0, len(slots))
	kept := vectors[:0]
	for i, s := range slots {
		if vectors[i] == nil {
			continue
		}
		if len(vectors[i]) != dims {
			return nil, nil, fmt.Errorf("embedding for record %d has %d dimensions, index expects %d", s.id, len(vectors[i]), dims)
		}
		ids = append(ids, s.id)
		kept = append(kept, vectors[i])
	}
	return ids, kept, nil
}

// embedEach embeds texts one by one, leaving nil for texts with no embeddable content.
func (idx *Indexer) embedEach(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := idx.embedder.Embed(ctx, text)
		if errors.Is(err, embedding.ErrEmptyText) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalizeBook(b *models.Book, id int64) *models.Book {
	out := &models.Book{
		ID:          id,
		Title:       Preprocess(b.Title),
		Author:      Preprocess(b.Author),
		Publisher:   Preprocess(b.Publisher),
		Category:    Preprocess(b.Category),
		PublishDate: Preprocess(b.PublishDate),
		Description: Preprocess(b.Description),
	}
	if len(b.Extras) > 0 {
		out.Extras = make(map[string]string, len(b.Extras))
		for k, v := range b.Extras {
			if v = Preprocess(v); v != "" {
				out.Extras[k] = v
			}
		}
	}
	return out
}
