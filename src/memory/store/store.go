package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/devsynth-io/crossmem/src/memory/model"
)

// Query is the backend-agnostic search request. The zero value means
// "all items"; backends interpret Text in whatever way suits them
// (substring match, similarity search, ...).
type Query struct {
	Text   string
	Filter map[string]any
	Limit  int
}

// All is the trivial query every backend must accept.
var All = Query{}

// Matches implements the reference query semantics used by in-process
// backends: empty text matches everything, otherwise case-sensitive
// substring match on content, then exact-match metadata filtering.
func (q Query) Matches(item model.MemoryItem) bool {
	if q.Text != "" && !strings.Contains(item.Content, q.Text) {
		return false
	}
	return model.MatchesFilter(item.Metadata, q.Filter)
}

// Store is the minimal capability surface every backend must expose so
// the engine can treat heterogeneous storage uniformly.
type Store interface {
	// Store inserts or overwrites an item, assigning an id when the
	// caller supplied none, and returns the effective id.
	Store(ctx context.Context, item model.MemoryItem) (string, error)

	// Retrieve returns the item with the given id, or nil when absent.
	Retrieve(ctx context.Context, id string) (*model.MemoryItem, error)

	// Search returns the items matching q. The zero Query returns all
	// items.
	Search(ctx context.Context, q Query) ([]model.MemoryItem, error)

	// Delete removes the item and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// Transactional is implemented by stores with native transaction
// support. Once a transaction is active, the store routes its own
// mutations through it until commit or rollback.
type Transactional interface {
	BeginTransaction(ctx context.Context, txID string) (string, error)
	CommitTransaction(ctx context.Context, txID string) error
	RollbackTransaction(ctx context.Context, txID string) error
	IsTransactionActive(txID string) bool
}

// State is the opaque snapshot payload a Snapshotter hands back. It is
// valid only for the single transaction that captured it.
type State any

// Snapshotter is implemented by stores that can capture and restore
// their full retrievable state natively.
type Snapshotter interface {
	Snapshot(ctx context.Context) (State, error)
	Restore(ctx context.Context, state State) error
}

// VectorSearcher is implemented by vector-shaped backends. Stores that
// implement it receive MemoryVector translations during replication
// and synchronization instead of plain items.
type VectorSearcher interface {
	StoreVector(ctx context.Context, vec model.MemoryVector) (string, error)
	RetrieveVector(ctx context.Context, id string) (*model.MemoryVector, error)
	SimilaritySearch(ctx context.Context, embedding []float32, limit int) ([]model.MemoryVector, error)
}

// Capability flags advertised by CapabilityReporter.
type Capability uint8

const (
	// CapFullScan marks a store whose Search(All) enumerates every item,
	// making the generic snapshot fallback safe.
	CapFullScan Capability = 1 << iota
)

// CapabilityReporter lets a store state its capabilities explicitly.
// Stores that do not implement it are assumed to support full scans;
// a reporter omitting CapFullScan opts out of the generic transaction
// fallback and will be rejected at Transaction entry unless it offers
// native transactions or snapshots.
type CapabilityReporter interface {
	Capabilities() Capability
}

// UnknownStoreError reports a reference to a store name that is not
// registered.
type UnknownStoreError struct {
	Name string
}

func (e *UnknownStoreError) Error() string {
	return fmt.Sprintf("unknown store %q", e.Name)
}

// Registry is the ordered name -> Store map owned by the memory
// manager. Sync manager and query router hold the same handle;
// registration order defines cascading-query priority.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	stores map[string]Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

// Register adds a store under name. Re-registering a name is an error;
// adapters are wired once at construction time.
func (r *Registry) Register(name string, s Store) error {
	if name == "" {
		return fmt.Errorf("store name is empty")
	}
	if s == nil {
		return fmt.Errorf("store %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[name]; ok {
		return fmt.Errorf("store %q already registered", name)
	}
	r.stores[name] = s
	r.names = append(r.names, name)
	return nil
}

// Resolve returns the store registered under name.
func (r *Registry) Resolve(name string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	if !ok {
		return nil, &UnknownStoreError{Name: name}
	}
	return s, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
