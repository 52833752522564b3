package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bets3435-dev/book-search-app/internal/metrics"
)

// kvStore is the persistent tier of the embedding cache.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder decorates an Embedder with an in-process LRU and an optional persistent store.
// Keys include the provider identity so switching models never serves stale vectors.
type CachedEmbedder struct {
	inner      Embedder
	identity   string
	memory     *EmbeddingCache
	store      kvStore
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewCachedEmbedder creates a caching decorator. store and cacheTotal may be nil.
// cacheTotal is a counter vec with labels "tier" and "result".
func NewCachedEmbedder(inner Embedder, identity string, memory *EmbeddingCache, store kvStore, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if memory == nil {
		memory = NewEmbeddingCache(0)
	}
	return &CachedEmbedder{
		inner:      inner,
		identity:   identity,
		memory:     memory,
		store:      store,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	key := c.cacheKey(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.observe(func() ([]float32, error) { return c.inner.Embed(ctx, text) })
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	c.put(ctx, key, vec)
	return vec, nil
}

// EmbedBatch serves cached texts and sends the rest to the inner embedder in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		if err := checkText(text); err != nil {
			return nil, err
		}
		keys[i] = c.cacheKey(text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	start := time.Now()
	vecs, err := c.inner.EmbedBatch(ctx, batch)
	c.record(start, err)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(batch))
	}
	for j, i := range missing {
		out[i] = vecs[j]
		c.put(ctx, keys[i], vecs[j])
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the inner embedder and the persistent store when it is closable.
func (c *CachedEmbedder) Close() error {
	err := c.inner.Close()
	if closer, ok := c.store.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.identity + "\x00" + text))
	return "emb:" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.memory.Get(key); ok {
		c.incCache("memory", "hit")
		return vec, true
	}
	c.incCache("memory", "miss")
	if c.store == nil {
		return nil, false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		c.incCache("disk", "miss")
		return nil, false
	}
	vec, err := bytesToVector(data)
	if err != nil || len(vec) != c.inner.Dimensions() {
		c.logger.Warn("Discarding malformed cached embedding", zap.String("key", key), zap.Int("bytes", len(data)))
		c.incCache("disk", "miss")
		return nil, false
	}
	c.incCache("disk", "hit")
	c.memory.Set(key, vec)
	return vec, true
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	c.memory.Set(key, vec)
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) observe(fn func() ([]float32, error)) ([]float32, error) {
	start := time.Now()
	vec, err := fn()
	c.record(start, err)
	return vec, err
}

func (c *CachedEmbedder) record(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(c.identity, status).Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(c.identity).Observe(time.Since(start).Seconds())
}

func (c *CachedEmbedder) incCache(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
