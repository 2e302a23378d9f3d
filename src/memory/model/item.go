package model

import "time"

// MemoryType classifies the kind of artifact a memory item holds.
type MemoryType string

const (
	TypeCode          MemoryType = "CODE"
	TypeDocumentation MemoryType = "DOCUMENTATION"
	TypeContext       MemoryType = "CONTEXT"
	TypeTaskHistory   MemoryType = "TASK_HISTORY"
	TypeKnowledge     MemoryType = "KNOWLEDGE"
	TypeSolution      MemoryType = "SOLUTION"
	TypeErrorLog      MemoryType = "ERROR_LOG"
)

// SourceStoreKey is the metadata key carrying result provenance. It is
// written only onto copies produced by query tagging and must never be
// persisted back into a store.
const SourceStoreKey = "source_store"

// MemoryItem is the unit of persistence for item-shaped backends.
// The store that holds an item owns it; everything above the store
// layer works on transient copies.
type MemoryItem struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	MemoryType MemoryType     `json:"memory_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Clone returns a copy of the item with its own metadata map.
func (it MemoryItem) Clone() MemoryItem {
	cp := it
	cp.Metadata = CloneMetadata(it.Metadata)
	return cp
}

// MemoryVector is the unit of persistence for vector-only backends.
// The embedding is mandatory; content is auxiliary text kept so the
// vector can be translated back into an item.
type MemoryVector struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy of the vector with its own embedding and metadata.
func (v MemoryVector) Clone() MemoryVector {
	cp := v
	cp.Embedding = append([]float32(nil), v.Embedding...)
	cp.Metadata = CloneMetadata(v.Metadata)
	return cp
}

// MemoryRecord pairs an item with the name of its origin store. It is
// the unit queued for asynchronous replication and never outlives the
// queue cycle that created it.
type MemoryRecord struct {
	Item   MemoryItem `json:"item"`
	Source string     `json:"source"`
}

// QueryResult wraps an item with its provenance. Item is a tagged copy:
// its metadata carries SourceStoreKey but the original in the owning
// store is untouched.
type QueryResult struct {
	Item   MemoryItem `json:"item"`
	Source string     `json:"source"`
}

// TagResult produces the tagged copy for a result returned by a query
// strategy.
func TagResult(item MemoryItem, source string) QueryResult {
	cp := item.Clone()
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]any, 1)
	}
	cp.Metadata[SourceStoreKey] = source
	return QueryResult{Item: cp, Source: source}
}

// CloneMetadata copies a metadata map of scalars.
func CloneMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	cp := make(map[string]any, len(meta))
	for k, v := range meta {
		cp[k] = v
	}
	return cp
}

// MatchesFilter reports whether every key in filter is present in meta
// with an equal value. A nil filter matches everything.
func MatchesFilter(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
