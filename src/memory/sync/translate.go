package sync

import (
	"context"
	"time"

	"github.com/devsynth-io/crossmem/src/memory/embed"
	"github.com/devsynth-io/crossmem/src/memory/model"
	"github.com/devsynth-io/crossmem/src/memory/store"
)

// Translator converts items into the representation a target backend
// requires before writing. Vector-shaped targets get an embedded
// MemoryVector; everything else gets the item as-is.
type Translator struct {
	embedder embed.Embedder
}

// NewTranslator builds a translator. A nil embedder falls back to the
// deterministic hash provider so translation stays dependency-free.
func NewTranslator(e embed.Embedder) *Translator {
	if e == nil {
		e = embed.HashEmbedder{}
	}
	return &Translator{embedder: e}
}

// Write translates item for the target store and persists it. A
// failure to produce the target representation is reported as a
// *TranslationError so batch callers can collect it and move on.
func (t *Translator) Write(ctx context.Context, name string, target store.Store, item model.MemoryItem) error {
	if vs, ok := target.(store.VectorSearcher); ok {
		embedding, err := t.embedder.Embed(ctx, item.Content)
		if err != nil {
			return &TranslationError{Store: name, ItemID: item.ID, Err: err}
		}
		vec := model.MemoryVector{
			ID:        item.ID,
			Content:   item.Content,
			Embedding: embedding,
			Metadata:  vectorMetadata(item),
		}
		if _, err := vs.StoreVector(ctx, vec); err != nil {
			return err
		}
		return nil
	}
	if _, err := target.Store(ctx, item); err != nil {
		return err
	}
	return nil
}

// vectorMetadata carries the item fields a vector backend would
// otherwise lose, so the vector can be translated back into an item.
func vectorMetadata(item model.MemoryItem) map[string]any {
	meta := model.CloneMetadata(item.Metadata)
	if meta == nil {
		meta = make(map[string]any, 2)
	}
	if item.MemoryType != "" {
		meta["memory_type"] = string(item.MemoryType)
	}
	if !item.CreatedAt.IsZero() {
		meta["created_at"] = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return meta
}
