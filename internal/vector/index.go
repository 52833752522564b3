// Package vector provides vector index and similarity search.
package vector

import "context"

// VectorIndex stores one embedding per record and answers cosine nearest-neighbour queries.
type VectorIndex interface {
	// Replace swaps the whole contents of the index for ids and vectors.
	Replace(ctx context.Context, ids []int64, vectors [][]float32) error
	// Search returns at most k hits ordered by similarity descending, ties by ascending ID.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    int64
	Score float64 // cosine similarity in [-1, 1]
}
