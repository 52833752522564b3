package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/bets3435-dev/book-search-app/internal/vector"
)

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Python Basics")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	again, _ := e.Embed(ctx, "python basics!")
	if vector.CosineSimilarity(a, again) < 0.999 {
		t.Error("case and punctuation should not change the embedding")
	}
	related, _ := e.Embed(ctx, "Advanced Python")
	if s := vector.CosineSimilarity(a, related); s <= 0 || s >= 1 {
		t.Errorf("shared word similarity = %f, want in (0, 1)", s)
	}
	if norm := vector.L2Norm(a); norm < 0.999 || norm > 1.001 {
		t.Errorf("norm = %f, want 1", norm)
	}

	for _, text := range []string{"", "   ", "!!"} {
		if _, err := e.Embed(ctx, text); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Embed(%q) error = %v, want ErrEmptyText", text, err)
		}
	}

	batch, err := e.EmbedBatch(ctx, []string{"a", "b"})
	if err != nil || len(batch) != 2 {
		t.Errorf("EmbedBatch = %d vectors, %v", len(batch), err)
	}
}

func BenchmarkHashEmbedder_Embed(b *testing.B) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	text := "Python Basics | Kim | Hanbit | 004 | an introduction to programming | 2019-03-01"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, text)
	}
}
