// Package embedding turns record and query text into vectors, with hashing, ONNX and
// OpenAI-compatible providers and a two-tier cache.
package embedding

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyText is returned for text with no embeddable content.
var ErrEmptyText = errors.New("empty text")

// Embedder produces vector embeddings for text. The same embedder must be used for
// records and queries so their vectors are comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// embedEach calls embed for each text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
