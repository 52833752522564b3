package embedding

import (
	"context"
	"math"
)

// HashEmbedder maps text to a bag-of-words vector by feature hashing. It needs no model,
// is deterministic, and gives texts that share words a positive cosine similarity.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized term-frequency vector of text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	terms := Terms(text)
	if len(terms) == 0 {
		return nil, ErrEmptyText
	}
	emb := make([]float32, e.dimensions)
	for _, term := range terms {
		emb[HashString(term)%uint32(e.dimensions)]++
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range emb {
		emb[i] *= norm
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
