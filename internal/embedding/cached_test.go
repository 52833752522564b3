package embedding

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/config"
)

type countingEmbedder struct {
	*HashEmbedder
	calls, texts int
	err          error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	c.texts++
	if c.err != nil {
		return nil, c.err
	}
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func newCacheCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"tier", "result"})
}

func TestCachedEmbedder_MemoryTier(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	counter := newCacheCounter()
	c := NewCachedEmbedder(inner, "hash-16", NewEmbeddingCache(10), nil, counter, zap.NewNop())
	ctx := context.Background()

	first, err := c.Embed(ctx, "python")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := c.Embed(ctx, "python")
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if &first[0] != &second[0] {
		t.Error("expected cached vector on second call")
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("memory", "hit")); got != 1 {
		t.Errorf("memory hits = %f, want 1", got)
	}

	if _, err := c.Embed(ctx, "  "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank text error = %v", err)
	}
	if inner.calls != 1 {
		t.Error("blank text should not reach the provider")
	}
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	c := NewCachedEmbedder(inner, "hash-16", NewEmbeddingCache(10), nil, nil, nil)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 || vecs[1] == nil {
		t.Fatalf("vecs = %v", vecs)
	}
	if inner.texts != 3 {
		t.Errorf("inner embedded %d texts, want 3 (b once, then a and c)", inner.texts)
	}
	want, _ := NewHashEmbedder(16).Embed(ctx, "c")
	for i := range want {
		if vecs[2][i] != want[i] {
			t.Fatal("batch results out of order")
		}
	}
}

func TestCachedEmbedder_PersistentTier(t *testing.T) {
	store, err := OpenBadgerStore("", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	first := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	c1 := NewCachedEmbedder(first, "hash-8", NewEmbeddingCache(10), store, nil, nil)
	want, err := c1.Embed(ctx, "data science")
	if err != nil {
		t.Fatal(err)
	}

	second := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	counter := newCacheCounter()
	c2 := NewCachedEmbedder(second, "hash-8", NewEmbeddingCache(10), store, counter, nil)
	got, err := c2.Embed(ctx, "data science")
	if err != nil {
		t.Fatal(err)
	}
	if second.calls != 0 {
		t.Errorf("expected disk hit, provider called %d times", second.calls)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatal("disk cache returned a different vector")
		}
	}
	if testutil.ToFloat64(counter.WithLabelValues("disk", "hit")) != 1 {
		t.Error("expected one disk hit")
	}

	other := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	c3 := NewCachedEmbedder(other, "other-model", NewEmbeddingCache(10), store, nil, nil)
	if _, err := c3.Embed(ctx, "data science"); err != nil {
		t.Fatal(err)
	}
	if other.calls != 1 {
		t.Error("cache entries must not be shared across provider identities")
	}
}

func TestCachedEmbedder_ProviderError(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8), err: errors.New("boom")}
	c := NewCachedEmbedder(inner, "x", NewEmbeddingCache(10), nil, nil, nil)
	if _, err := c.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected provider error")
	}
	if _, err := c.EmbedBatch(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected provider error from batch")
	}
}

func TestNewFromConfig_Hash(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "hash", Dimensions: 32, CacheSize: 10}
	e, err := NewFromConfig(cfg, filepath.Join(t.TempDir(), "cache"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
}

func TestNewFromConfig_Errors(t *testing.T) {
	if _, err := NewFromConfig(config.EmbeddingConfig{Provider: "word2vec"}, "", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewFromConfig(config.EmbeddingConfig{Provider: "openai", Dimensions: 8}, "", nil); err == nil {
		t.Error("expected error for openai without key")
	}
}
