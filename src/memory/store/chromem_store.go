package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/devsynth-io/crossmem/src/memory/model"
)

// EmbedFunc converts text into an embedding for query-by-text support.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// ChromemStore is a vector adapter backed by chromem-go, a pure-Go
// embedded vector database. A shadow index keeps the authoritative
// MemoryVector payloads so retrieval by id, full scans and snapshots
// stay cheap; chromem holds the similarity index.
type ChromemStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	embed      EmbedFunc
	vectors    map[string]model.MemoryVector
}

var (
	_ Store          = (*ChromemStore)(nil)
	_ VectorSearcher = (*ChromemStore)(nil)
	_ Snapshotter    = (*ChromemStore)(nil)
)

// NewChromemStore creates an in-process vector store. embed may be nil;
// text queries then fall back to substring scans over the shadow index.
func NewChromemStore(collection string, embed EmbedFunc) (*ChromemStore, error) {
	if collection == "" {
		collection = "memories"
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{
		db:         db,
		collection: col,
		name:       collection,
		embed:      embed,
		vectors:    make(map[string]model.MemoryVector),
	}, nil
}

// StoreVector inserts or overwrites a vector, assigning an id when none
// was supplied.
func (s *ChromemStore) StoreVector(ctx context.Context, vec model.MemoryVector) (string, error) {
	if len(vec.Embedding) == 0 {
		return "", errors.New("memory vector has no embedding")
	}
	if vec.ID == "" {
		vec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := chromem.Document{
		ID:        vec.ID,
		Content:   vec.Content,
		Embedding: append([]float32(nil), vec.Embedding...),
		Metadata:  stringifyMetadata(vec.Metadata),
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}
	s.vectors[vec.ID] = vec.Clone()
	return vec.ID, nil
}

// RetrieveVector returns the vector with the given id, or nil.
func (s *ChromemStore) RetrieveVector(_ context.Context, id string) (*model.MemoryVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[id]
	if !ok {
		return nil, nil
	}
	cp := vec.Clone()
	return &cp, nil
}

// SimilaritySearch returns up to limit vectors ordered by descending
// cosine similarity. limit <= 0 returns every stored vector.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, embedding []float32, limit int) ([]model.MemoryVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.vectors)
	if total == 0 {
		return nil, nil
	}
	// chromem rejects nResults beyond the collection size.
	n := limit
	if n <= 0 || n > total {
		n = total
	}
	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]model.MemoryVector, 0, len(results))
	for _, res := range results {
		vec, ok := s.vectors[res.ID]
		if !ok {
			continue
		}
		out = append(out, vec.Clone())
	}
	return out, nil
}

// Store translates an item into a vector before inserting. It requires
// an embed function; replication paths normally translate upstream and
// call StoreVector directly.
func (s *ChromemStore) Store(ctx context.Context, item model.MemoryItem) (string, error) {
	if s.embed == nil {
		return "", errors.New("chromem store has no embedder for item writes")
	}
	embedding, err := s.embed(ctx, item.Content)
	if err != nil {
		return "", err
	}
	return s.StoreVector(ctx, model.MemoryVector{
		ID:        item.ID,
		Content:   item.Content,
		Embedding: embedding,
		Metadata:  model.CloneMetadata(item.Metadata),
	})
}

// Retrieve returns the item-shaped view of a stored vector.
func (s *ChromemStore) Retrieve(ctx context.Context, id string) (*model.MemoryItem, error) {
	vec, err := s.RetrieveVector(ctx, id)
	if err != nil || vec == nil {
		return nil, err
	}
	item := itemFromVector(*vec)
	return &item, nil
}

// Search answers text queries by similarity when an embedder is
// configured, otherwise by substring scan. The zero query returns all
// stored vectors as items.
func (s *ChromemStore) Search(ctx context.Context, q Query) ([]model.MemoryItem, error) {
	if q.Text != "" && s.embed != nil {
		embedding, err := s.embed(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		vectors, err := s.SimilaritySearch(ctx, embedding, q.Limit)
		if err != nil {
			return nil, err
		}
		items := make([]model.MemoryItem, 0, len(vectors))
		for _, vec := range vectors {
			item := itemFromVector(vec)
			if model.MatchesFilter(item.Metadata, q.Filter) {
				items = append(items, item)
			}
		}
		return items, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]model.MemoryItem, 0, len(s.vectors))
	for _, vec := range s.vectors {
		item := itemFromVector(vec.Clone())
		if q.Matches(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

// Delete removes a vector from both chromem and the shadow index.
func (s *ChromemStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vectors[id]; !ok {
		return false, nil
	}
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("chromem delete: %w", err)
	}
	delete(s.vectors, id)
	return true, nil
}

// Snapshot captures the shadow index.
func (s *ChromemStore) Snapshot(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]model.MemoryVector, len(s.vectors))
	for id, vec := range s.vectors {
		snapshot[id] = vec.Clone()
	}
	return snapshot, nil
}

// Restore rebuilds the chromem collection from a snapshot.
func (s *ChromemStore) Restore(ctx context.Context, state State) error {
	snapshot, ok := state.(map[string]model.MemoryVector)
	if !ok {
		return fmt.Errorf("unexpected snapshot state %T", state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("reset collection: %w", err)
	}
	col, err := s.db.CreateCollection(s.name, nil, nil)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	s.collection = col
	s.vectors = make(map[string]model.MemoryVector, len(snapshot))
	for id, vec := range snapshot {
		doc := chromem.Document{
			ID:        id,
			Content:   vec.Content,
			Embedding: append([]float32(nil), vec.Embedding...),
			Metadata:  stringifyMetadata(vec.Metadata),
		}
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("restore document %s: %w", id, err)
		}
		s.vectors[id] = vec.Clone()
	}
	return nil
}

func itemFromVector(vec model.MemoryVector) model.MemoryItem {
	return model.MemoryItem{
		ID:       vec.ID,
		Content:  vec.Content,
		Metadata: model.CloneMetadata(vec.Metadata),
	}
}

func stringifyMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if str, ok := v.(string); ok {
			out[k] = str
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
