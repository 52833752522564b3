package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	if err := idx.Replace(context.Background(), []int64{1}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if idx.Size() != 1 || idx.Dimensions() != 3 || idx.Type() != "memory" {
		t.Errorf("Size=%d Dimensions=%d Type=%s", idx.Size(), idx.Dimensions(), idx.Type())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	idx, err := NewVectorIndex("", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()
	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	if _, err := NewVectorIndex("faiss", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	if _, err := NewVectorIndex("memory", 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}
