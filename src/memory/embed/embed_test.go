package embed

import (
	"context"
	"errors"
	"testing"
)

func TestHashEmbeddingDeterminism(t *testing.T) {
	a := HashEmbedding("identical input")
	b := HashEmbedding("identical input")
	if len(a) != HashDimensions {
		t.Fatalf("length = %d, want %d", len(a), HashDimensions)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}

	c := HashEmbedding("different input")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct inputs produced identical vectors")
	}
}

func TestHashEmbeddingEmptyText(t *testing.T) {
	vec := HashEmbedding("")
	if len(vec) != HashDimensions {
		t.Fatalf("length = %d, want %d", len(vec), HashDimensions)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider offline")
}

type emptyEmbedder struct{}

func (emptyEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, nil
}

func TestSafeEmbedFallsBack(t *testing.T) {
	ctx := context.Background()
	want := HashEmbedding("text")

	for name, e := range map[string]Embedder{
		"nil":     nil,
		"failing": failingEmbedder{},
		"empty":   emptyEmbedder{},
	} {
		got := SafeEmbed(ctx, e, "text")
		if len(got) != len(want) {
			t.Fatalf("%s: length = %d, want %d", name, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("%s: fallback differs at %d", name, i)
			}
		}
	}
}

func TestAutoEmbedderDefaultsToHash(t *testing.T) {
	t.Setenv("CROSSMEM_EMBED_PROVIDER", "")
	e := AutoEmbedder()
	if _, ok := e.(HashEmbedder); !ok {
		t.Fatalf("AutoEmbedder = %T, want HashEmbedder", e)
	}
}

func TestAutoEmbedderUnknownProviderFallsBack(t *testing.T) {
	t.Setenv("CROSSMEM_EMBED_PROVIDER", "abacus")
	e := AutoEmbedder()
	if _, ok := e.(HashEmbedder); !ok {
		t.Fatalf("AutoEmbedder = %T, want HashEmbedder", e)
	}
}
