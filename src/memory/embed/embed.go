package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// HashDimensions is the length of the deterministic fallback vectors.
const HashDimensions = 768

// HashEmbedder is the dependency-free fallback provider. Identical text
// always yields identical vectors, which keeps similarity search
// reproducible and cache keys stable when no external provider is
// configured.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return HashEmbedding(text), nil
}

// HashEmbedding derives a fixed-length vector from a stable hash of the
// text's byte sequence.
func HashEmbedding(text string) []float32 {
	vec := make([]float32, HashDimensions)
	h := fnv.New64a()
	for i, ch := range []byte(text) {
		h.Reset()
		_, _ = h.Write([]byte{ch, byte(i), byte(i >> 8)})
		vec[i%HashDimensions] += float32(h.Sum64()%1024) / 1024.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// CROSSMEM_EMBED_PROVIDER=openai|google|gemini|ollama|claude
// CROSSMEM_EMBED_MODEL=<model string>
// If unset or construction fails, the deterministic hash fallback is
// used.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("CROSSMEM_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("CROSSMEM_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini", "vertex", "vertexai":
		if e, err := NewVertexAIEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "claude", "anthropic", "voyage":
		if e, err := NewClaudeEmbedder(model); err == nil {
			return e
		}
	}
	return HashEmbedder{}
}

// SafeEmbed never fails: provider errors and empty vectors fall back to
// the deterministic hash embedding.
func SafeEmbed(ctx context.Context, e Embedder, text string) []float32 {
	if e == nil {
		return HashEmbedding(text)
	}
	v, err := e.Embed(ctx, text)
	if err != nil || len(v) == 0 {
		return HashEmbedding(text)
	}
	return v
}
