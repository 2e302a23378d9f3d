package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devsynth-io/crossmem/src/memory/model"
)

// InMemoryStore is the reference adapter: a process-local map with
// native transaction and snapshot support. It backs tests and
// lightweight deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]model.MemoryItem

	activeTx string
	journal  []undoEntry
}

type undoEntry struct {
	id   string
	prev *model.MemoryItem // nil means the id did not exist
}

var (
	_ Store         = (*InMemoryStore)(nil)
	_ Transactional = (*InMemoryStore)(nil)
	_ Snapshotter   = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]model.MemoryItem)}
}

func (s *InMemoryStore) Store(_ context.Context, item model.MemoryItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.record(item.ID)
	s.items[item.ID] = item.Clone()
	return item.ID, nil
}

func (s *InMemoryStore) Retrieve(_ context.Context, id string) (*model.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	cp := item.Clone()
	return &cp, nil
}

func (s *InMemoryStore) Search(_ context.Context, q Query) ([]model.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]model.MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		if q.Matches(item) {
			results = append(results, item.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	s.record(id)
	delete(s.items, id)
	return true, nil
}

// record journals the pre-mutation state of id while a transaction is
// active. Must be called with the write lock held.
func (s *InMemoryStore) record(id string) {
	if s.activeTx == "" {
		return
	}
	if prev, ok := s.items[id]; ok {
		cp := prev.Clone()
		s.journal = append(s.journal, undoEntry{id: id, prev: &cp})
	} else {
		s.journal = append(s.journal, undoEntry{id: id})
	}
}

func (s *InMemoryStore) BeginTransaction(_ context.Context, txID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTx != "" {
		return "", fmt.Errorf("transaction %q already active", s.activeTx)
	}
	if txID == "" {
		txID = uuid.NewString()
	}
	s.activeTx = txID
	s.journal = nil
	return txID, nil
}

func (s *InMemoryStore) CommitTransaction(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTx != txID {
		return fmt.Errorf("transaction %q is not active", txID)
	}
	s.activeTx = ""
	s.journal = nil
	return nil
}

func (s *InMemoryStore) RollbackTransaction(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTx != txID {
		return fmt.Errorf("transaction %q is not active", txID)
	}
	// Undo in reverse journal order so overlapping mutations unwind to
	// the pre-transaction state.
	for i := len(s.journal) - 1; i >= 0; i-- {
		entry := s.journal[i]
		if entry.prev == nil {
			delete(s.items, entry.id)
		} else {
			s.items[entry.id] = entry.prev.Clone()
		}
	}
	s.activeTx = ""
	s.journal = nil
	return nil
}

func (s *InMemoryStore) IsTransactionActive(txID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTx == txID && txID != ""
}

func (s *InMemoryStore) Snapshot(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copyMap := make(map[string]model.MemoryItem, len(s.items))
	for id, item := range s.items {
		copyMap[id] = item.Clone()
	}
	return copyMap, nil
}

func (s *InMemoryStore) Restore(_ context.Context, state State) error {
	snapshot, ok := state.(map[string]model.MemoryItem)
	if !ok {
		return fmt.Errorf("unexpected snapshot state %T", state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]model.MemoryItem, len(snapshot))
	for id, item := range snapshot {
		s.items[id] = item.Clone()
	}
	return nil
}
