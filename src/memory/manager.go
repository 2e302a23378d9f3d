package memory

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/devsynth-io/crossmem/src/logging"
	cachepkg "github.com/devsynth-io/crossmem/src/memory/cache"
	embedpkg "github.com/devsynth-io/crossmem/src/memory/embed"
	"github.com/devsynth-io/crossmem/src/memory/model"
	routerpkg "github.com/devsynth-io/crossmem/src/memory/router"
	storepkg "github.com/devsynth-io/crossmem/src/memory/store"
	syncpkg "github.com/devsynth-io/crossmem/src/memory/sync"
)

// VectorAdapterName is the registry name search_memory targets for
// similarity search.
const VectorAdapterName = "vector"

const defaultSearchLimit = 10

// Options configure a Manager. The zero value is usable: one 128-entry
// cache layer, deterministic hash embeddings, no logging.
type Options struct {
	// CacheSizes lists tiered cache layer capacities, smallest first.
	CacheSizes []int
	// Embedder supplies embeddings for search and translation. Nil
	// falls back to the deterministic hash provider.
	Embedder embedpkg.Embedder
	// Logger receives engine diagnostics. Nil disables logging.
	Logger logging.Logger
}

// SearchOptions narrow a similarity search.
type SearchOptions struct {
	MemoryType     model.MemoryType
	MetadataFilter map[string]any
	Limit          int
}

// SyncReport summarizes one synchronize run. Per-item translation
// failures are collected here; they never abort the rest of the batch.
type SyncReport struct {
	Synced   int
	Failures []error
}

// Manager is the façade over adapters, tiered cache, sync manager, and
// query router. It owns the adapter registry; the sync manager and
// router share the same handle.
type Manager struct {
	registry *storepkg.Registry
	cache    *cachepkg.TieredCache
	syncMgr  *syncpkg.SyncManager
	router   *routerpkg.Router
	embedder embedpkg.Embedder
	logger   logging.Logger

	mu        gosync.RWMutex
	shortTerm map[model.MemoryType]map[string]model.MemoryItem
}

// NewManager wires the engine components together.
func NewManager(opts Options) (*Manager, error) {
	tiered, err := cachepkg.NewTieredCache(opts.CacheSizes...)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	embedder := opts.Embedder
	if embedder == nil {
		embedder = embedpkg.HashEmbedder{}
	}
	registry := storepkg.NewRegistry()
	syncMgr := syncpkg.NewSyncManager(registry, embedder, logger)
	return &Manager{
		registry:  registry,
		cache:     tiered,
		syncMgr:   syncMgr,
		router:    routerpkg.NewRouter(registry, syncMgr, logger),
		embedder:  embedder,
		logger:    logger,
		shortTerm: make(map[model.MemoryType]map[string]model.MemoryItem),
	}, nil
}

// RegisterAdapter adds a named backend. Registration order defines
// cascading-query priority.
func (m *Manager) RegisterAdapter(name string, st storepkg.Store) error {
	if err := m.registry.Register(name, st); err != nil {
		return err
	}
	m.logger.Info("registered memory adapter", "store", name)
	return nil
}

// Store composes a fresh id and inserts the content into the in-process
// layer for its memory type.
func (m *Manager) Store(_ context.Context, content string, memoryType model.MemoryType) (string, error) {
	if memoryType == "" {
		return "", fmt.Errorf("memory type is empty")
	}
	item := model.MemoryItem{
		ID:         uuid.NewString(),
		Content:    content,
		MemoryType: memoryType,
		CreatedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	layer, ok := m.shortTerm[memoryType]
	if !ok {
		layer = make(map[string]model.MemoryItem)
		m.shortTerm[memoryType] = layer
	}
	layer[item.ID] = item
	m.mu.Unlock()
	return item.ID, nil
}

// Retrieve is a cache-first lookup keyed by "{memory_type}:{id}". On a
// cache miss it falls through to the in-process layer and populates the
// cache on success. Absence is nil, nil.
func (m *Manager) Retrieve(_ context.Context, id string, memoryType model.MemoryType) (*model.MemoryItem, error) {
	key := cacheKey(memoryType, id)
	if v, ok := m.cache.Get(key); ok {
		item := v.(model.MemoryItem).Clone()
		return &item, nil
	}

	m.mu.RLock()
	item, ok := m.shortTerm[memoryType][id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	m.cache.Set(key, item.Clone())
	cp := item.Clone()
	return &cp, nil
}

// Delete removes an item from the in-process layer. Cached copies
// survive until eviction or ClearCache; Retrieve may therefore serve a
// deleted item from cache, mirroring the read-through contract.
func (m *Manager) Delete(_ context.Context, id string, memoryType model.MemoryType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.shortTerm[memoryType]
	if !ok {
		return false
	}
	if _, ok := layer[id]; !ok {
		return false
	}
	delete(layer, id)
	return true
}

// SearchMemory embeds the query and runs a similarity search against
// the "vector" adapter, applying an optional memory-type and
// exact-match metadata filter, truncated to the limit and ordered by
// descending similarity.
func (m *Manager) SearchMemory(ctx context.Context, query string, opts SearchOptions) ([]model.MemoryVector, error) {
	st, err := m.registry.Resolve(VectorAdapterName)
	if err != nil {
		return nil, err
	}
	vs, ok := st.(storepkg.VectorSearcher)
	if !ok {
		return nil, fmt.Errorf("store %q does not support similarity search", VectorAdapterName)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	filtered := opts.MemoryType != "" || len(opts.MetadataFilter) > 0

	// Oversample when filtering so post-filter truncation still has
	// enough candidates.
	fetch := limit
	if filtered {
		fetch = limit * 10
	}

	embedding := m.EmbedText(ctx, query)
	candidates, err := vs.SimilaritySearch(ctx, embedding, fetch)
	if err != nil {
		return nil, err
	}

	results := make([]model.MemoryVector, 0, limit)
	for _, vec := range candidates {
		if opts.MemoryType != "" && vec.Metadata["memory_type"] != string(opts.MemoryType) {
			continue
		}
		if !model.MatchesFilter(vec.Metadata, opts.MetadataFilter) {
			continue
		}
		results = append(results, vec.Clone())
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Synchronize reads every item from the source store, translates each
// into the representation the target requires, and writes it there.
// Unknown store names are structural errors; per-item translation
// failures are collected in the report while the rest of the batch
// continues.
func (m *Manager) Synchronize(ctx context.Context, sourceName, targetName string) (SyncReport, error) {
	source, err := m.registry.Resolve(sourceName)
	if err != nil {
		return SyncReport{}, err
	}
	target, err := m.registry.Resolve(targetName)
	if err != nil {
		return SyncReport{}, err
	}

	items, err := source.Search(ctx, storepkg.All)
	if err != nil {
		return SyncReport{}, fmt.Errorf("read store %q: %w", sourceName, err)
	}

	translator := m.syncMgr.Translator()
	report := SyncReport{}
	for _, item := range items {
		if err := translator.Write(ctx, targetName, target, item); err != nil {
			m.logger.Warn("synchronize item failed",
				"source", sourceName, "target", targetName, "item", item.ID, "error", err)
			report.Failures = append(report.Failures, err)
			continue
		}
		report.Synced++
	}
	m.logger.Info("synchronize completed",
		"source", sourceName, "target", targetName,
		"synced", report.Synced, "failed", len(report.Failures))
	return report, nil
}

// EmbedText produces an embedding for text, falling back to the
// deterministic hash provider on error so identical text always yields
// identical vectors.
func (m *Manager) EmbedText(ctx context.Context, text string) []float32 {
	return embedpkg.SafeEmbed(ctx, m.embedder, text)
}

// Adapters returns the shared store registry.
func (m *Manager) Adapters() *storepkg.Registry { return m.registry }

// Sync returns the sync manager.
func (m *Manager) Sync() *syncpkg.SyncManager { return m.syncMgr }

// Router returns the query router.
func (m *Manager) Router() *routerpkg.Router { return m.router }

// Route dispatches a query through the router.
func (m *Manager) Route(ctx context.Context, query string, opts routerpkg.RouteOptions) (*routerpkg.RouteResult, error) {
	return m.router.Route(ctx, query, opts)
}

// CacheStats returns the per-layer hit/miss counters.
func (m *Manager) CacheStats() []cachepkg.Stats { return m.cache.Stats() }

// ClearCache empties the tiered cache and zeroes its counters.
func (m *Manager) ClearCache() { m.cache.Clear() }

func cacheKey(memoryType model.MemoryType, id string) string {
	return string(memoryType) + ":" + id
}
