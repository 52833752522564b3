package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search.
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the specified type.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory)", indexType)
	}
}
