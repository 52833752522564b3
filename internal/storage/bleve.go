package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

const (
	currentFile     = "CURRENT"
	generationGlob  = "gen-*"
	bleveBatchSize  = 1000
	sortValuePrefix = "_"
)

var storedFields = []string{"title", "author", "publisher", "category", "publish_date", "description", "extras"}

// textFields are the fields a free-text predicate matches against.
var textFields = []string{"title", "author", "publisher", "description"}

// BleveStorage implements RecordStore on a Bleve index. Each full replacement is
// written to a new generation directory and swapped in on commit; CURRENT names the
// live generation. An empty root keeps every generation in memory.
type BleveStorage struct {
	root string

	mu    sync.RWMutex
	index bleve.Index
	gen   string
}

// NewBleveStorage opens the live generation under root, creating an empty one if none exists.
func NewBleveStorage(root string) (*BleveStorage, error) {
	s := &BleveStorage{root: root}
	if root == "" {
		idx, err := bleve.NewMemOnly(bookMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		s.index = idx
		return s, nil
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	if data, err := os.ReadFile(filepath.Join(root, currentFile)); err == nil {
		gen := strings.TrimSpace(string(data))
		idx, openErr := bleve.Open(filepath.Join(root, gen))
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index %s: %w", gen, openErr)
		}
		s.index, s.gen = idx, gen
	} else {
		idx, gen, err := s.newGeneration()
		if err != nil {
			return nil, err
		}
		if err := s.writeCurrent(gen); err != nil {
			_ = idx.Close()
			return nil, err
		}
		s.index, s.gen = idx, gen
	}
	s.removeStaleGenerations()
	return s, nil
}

func bookMapping() *mapping.IndexMappingImpl {
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	for _, f := range storedFields {
		fm := bleve.NewTextFieldMapping()
		fm.Index = false
		fm.Store = true
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		fm.DocValues = false
		doc.AddFieldMappingsAt(f, fm)
	}
	category := bleve.NewKeywordFieldMapping()
	category.Store = false
	category.IncludeInAll = false
	doc.AddFieldMappingsAt("category_exact", category)

	for _, f := range textFields {
		doc.AddFieldMappingsAt(f+"_fold", indexedKeyword())
	}
	for _, key := range []models.SortKey{models.SortTitle, models.SortAuthor, models.SortDate} {
		doc.AddFieldMappingsAt(key.Spec().Field+"_sort", indexedKeyword())
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = keyword.Name
	im.IndexDynamic = false
	im.StoreDynamic = false
	return im
}

func indexedKeyword() *mapping.FieldMapping {
	fm := bleve.NewKeywordFieldMapping()
	fm.Store = false
	fm.IncludeInAll = false
	return fm
}

// docID renders id so lexical document ID order equals numeric order.
func docID(id int64) string {
	return fmt.Sprintf("%020d", id)
}

func bookDocument(b *models.Book) (map[string]interface{}, error) {
	extras, err := encodeExtras(b.Extras)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{
		"title":            b.Title,
		"author":           b.Author,
		"publisher":        b.Publisher,
		"category":         b.Category,
		"publish_date":     b.PublishDate,
		"description":      b.Description,
		"extras":           extras,
		"category_exact":   b.Category,
		"title_fold":       models.Fold(b.Title),
		"author_fold":      models.Fold(b.Author),
		"publisher_fold":   models.Fold(b.Publisher),
		"description_fold": models.Fold(b.Description),
	}
	// Sort values carry a prefix so empty fields still produce a term.
	for _, key := range []models.SortKey{models.SortTitle, models.SortAuthor, models.SortDate} {
		spec := key.Spec()
		v := spec.Value(b)
		if spec.Fold {
			v = models.Fold(v)
		}
		doc[spec.Field+"_sort"] = sortValuePrefix + v
	}
	return doc, nil
}

func predicateQuery(pred models.Predicate) blevequery.Query {
	var conjuncts []blevequery.Query
	if pred.Text != "" {
		pattern := ".*" + regexp.QuoteMeta(models.Fold(pred.Text)) + ".*"
		disjuncts := make([]blevequery.Query, 0, len(textFields))
		for _, f := range textFields {
			q := bleve.NewRegexpQuery(pattern)
			q.SetField(f + "_fold")
			disjuncts = append(disjuncts, q)
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}
	if pred.Category != "" {
		q := bleve.NewTermQuery(pred.Category)
		q.SetField("category_exact")
		conjuncts = append(conjuncts, q)
	}
	switch len(conjuncts) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return conjuncts[0]
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

func sortOrder(key models.SortKey) search.SortOrder {
	spec := key.Spec()
	if spec.Field == "id" {
		return search.SortOrder{&search.SortDocID{}}
	}
	return search.SortOrder{
		&search.SortField{Field: spec.Field + "_sort", Desc: spec.Desc, Type: search.SortFieldAsString},
		&search.SortDocID{},
	}
}

// Filter returns the matching count and one ordered window of matching records.
func (s *BleveStorage) Filter(ctx context.Context, pred models.Predicate, sort models.SortKey, limit, offset int) (int, []*models.Book, error) {
	req := bleve.NewSearchRequest(predicateQuery(pred))
	req.Size = limit
	if limit < 0 {
		req.Size = 0
	}
	req.From = offset
	req.SortByCustom(sortOrder(sort))
	req.Fields = storedFields

	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	books, err := hitsToBooks(res.Hits)
	if err != nil {
		return 0, nil, err
	}
	return int(res.Total), books, nil
}

// GetBooks returns the records for ids that exist.
func (s *BleveStorage) GetBooks(ctx context.Context, ids []int64) (map[int64]*models.Book, error) {
	out := make(map[int64]*models.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = docID(id)
	}
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery(docIDs))
	req.Size = len(docIDs)
	req.Fields = storedFields

	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve lookup failed: %w", err)
	}
	books, err := hitsToBooks(res.Hits)
	if err != nil {
		return nil, err
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

// GetBook returns a record by ID.
func (s *BleveStorage) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	books, err := s.GetBooks(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	b, ok := books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return b, nil
}

// Count returns the number of records in the live generation.
func (s *BleveStorage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.index.DocCount()
	return int(n), err
}

// Categories walks the exact category terms of the live generation.
func (s *BleveStorage) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dict, err := s.index.FieldDict("category_exact")
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	defer dict.Close()

	out := []models.CategoryCount{}
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read categories: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Term == "" {
			continue
		}
		out = append(out, models.CategoryCount{Category: entry.Term, Count: int(entry.Count)})
	}
	return out, nil
}

// BeginReplace writes books into a new generation that is not visible until Commit.
func (s *BleveStorage) BeginReplace(ctx context.Context, books []*models.Book) (Replacement, error) {
	idx, gen, err := s.newGeneration()
	if err != nil {
		return nil, err
	}
	r := &bleveReplacement{store: s, index: idx, gen: gen}

	batch := idx.NewBatch()
	for _, b := range books {
		if err := ctx.Err(); err != nil {
			_ = r.Rollback()
			return nil, err
		}
		doc, err := bookDocument(b)
		if err != nil {
			_ = r.Rollback()
			return nil, err
		}
		if err := batch.Index(docID(b.ID), doc); err != nil {
			_ = r.Rollback()
			return nil, fmt.Errorf("failed to index book %d: %w", b.ID, err)
		}
		if batch.Size() >= bleveBatchSize {
			if err := idx.Batch(batch); err != nil {
				_ = r.Rollback()
				return nil, fmt.Errorf("failed to write batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			_ = r.Rollback()
			return nil, fmt.Errorf("failed to write batch: %w", err)
		}
	}
	return r, nil
}

// Close closes the live generation.
func (s *BleveStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

func (s *BleveStorage) newGeneration() (bleve.Index, string, error) {
	if s.root == "" {
		idx, err := bleve.NewMemOnly(bookMapping())
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return idx, "", nil
	}
	gen := "gen-" + uuid.NewString()
	idx, err := bleve.New(filepath.Join(s.root, gen), bookMapping())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return idx, gen, nil
}

func (s *BleveStorage) writeCurrent(gen string) error {
	tmp := filepath.Join(s.root, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(gen+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", currentFile, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.root, currentFile)); err != nil {
		return fmt.Errorf("failed to write %s: %w", currentFile, err)
	}
	return nil
}

// removeStaleGenerations deletes generation directories left by interrupted replacements.
func (s *BleveStorage) removeStaleGenerations() {
	dirs, _ := filepath.Glob(filepath.Join(s.root, generationGlob))
	for _, dir := range dirs {
		if filepath.Base(dir) != s.gen {
			_ = os.RemoveAll(dir)
		}
	}
}

type bleveReplacement struct {
	store *BleveStorage
	index bleve.Index
	gen   string
	done  bool
}

func (r *bleveReplacement) Commit() error {
	if r.done {
		return fmt.Errorf("replacement already finished")
	}
	s := r.store
	s.mu.Lock()
	if s.root != "" {
		if err := s.writeCurrent(r.gen); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	old, oldGen := s.index, s.gen
	s.index, s.gen = r.index, r.gen
	s.mu.Unlock()
	r.done = true

	_ = old.Close()
	if oldGen != "" {
		_ = os.RemoveAll(filepath.Join(s.root, oldGen))
	}
	return nil
}

func (r *bleveReplacement) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	err := r.index.Close()
	if r.gen != "" {
		_ = os.RemoveAll(filepath.Join(r.store.root, r.gen))
	}
	return err
}

func hitsToBooks(hits search.DocumentMatchCollection) ([]*models.Book, error) {
	books := make([]*models.Book, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", hit.ID, err)
		}
		b := &models.Book{
			ID:          id,
			Title:       fieldString(hit.Fields, "title"),
			Author:      fieldString(hit.Fields, "author"),
			Publisher:   fieldString(hit.Fields, "publisher"),
			Category:    fieldString(hit.Fields, "category"),
			PublishDate: fieldString(hit.Fields, "publish_date"),
			Description: fieldString(hit.Fields, "description"),
		}
		if extras := fieldString(hit.Fields, "extras"); extras != "" {
			if err := json.Unmarshal([]byte(extras), &b.Extras); err != nil {
				return nil, fmt.Errorf("failed to unmarshal extras: %w", err)
			}
		}
		books = append(books, b)
	}
	return books, nil
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
