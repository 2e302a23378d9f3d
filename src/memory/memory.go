// Package memory is the façade over the cross-store memory engine:
// adapters, tiered cache, sync manager, and query router.
package memory

import (
	cachepkg "github.com/devsynth-io/crossmem/src/memory/cache"
	embedpkg "github.com/devsynth-io/crossmem/src/memory/embed"
	"github.com/devsynth-io/crossmem/src/memory/model"
	routerpkg "github.com/devsynth-io/crossmem/src/memory/router"
	storepkg "github.com/devsynth-io/crossmem/src/memory/store"
	syncpkg "github.com/devsynth-io/crossmem/src/memory/sync"
)

// Type aliases preserving a single import path for the public API.
type (
	MemoryType   = model.MemoryType
	MemoryItem   = model.MemoryItem
	MemoryVector = model.MemoryVector
	MemoryRecord = model.MemoryRecord
	QueryResult  = model.QueryResult

	Store              = storepkg.Store
	Transactional      = storepkg.Transactional
	Snapshotter        = storepkg.Snapshotter
	VectorSearcher     = storepkg.VectorSearcher
	CapabilityReporter = storepkg.CapabilityReporter
	Registry           = storepkg.Registry
	Query              = storepkg.Query

	InMemoryStore = storepkg.InMemoryStore
	PostgresStore = storepkg.PostgresStore
	MongoStore    = storepkg.MongoStore
	GraphStore    = storepkg.GraphStore
	ChromemStore  = storepkg.ChromemStore

	TieredCache = cachepkg.TieredCache
	CacheStats  = cachepkg.Stats

	SyncManager  = syncpkg.SyncManager
	Router       = routerpkg.Router
	RouteOptions = routerpkg.RouteOptions
	RouteResult  = routerpkg.RouteResult
	Strategy     = routerpkg.Strategy

	Embedder     = embedpkg.Embedder
	HashEmbedder = embedpkg.HashEmbedder
	EmbedFunc    = storepkg.EmbedFunc

	UnknownStoreError           = storepkg.UnknownStoreError
	UnsupportedTransactionError = syncpkg.UnsupportedTransactionError
	RollbackError               = syncpkg.RollbackError
	TranslationError            = syncpkg.TranslationError
)

const (
	TypeCode          = model.TypeCode
	TypeDocumentation = model.TypeDocumentation
	TypeContext       = model.TypeContext
	TypeTaskHistory   = model.TypeTaskHistory
	TypeKnowledge     = model.TypeKnowledge
	TypeSolution      = model.TypeSolution
	TypeErrorLog      = model.TypeErrorLog

	StrategyDirect       = routerpkg.StrategyDirect
	StrategyCross        = routerpkg.StrategyCross
	StrategyCascading    = routerpkg.StrategyCascading
	StrategyFederated    = routerpkg.StrategyFederated
	StrategyContextAware = routerpkg.StrategyContextAware

	SourceStoreKey = model.SourceStoreKey
)

var (
	ErrNotSupported = embedpkg.ErrNotSupported

	NewRegistry      = storepkg.NewRegistry
	NewInMemoryStore = storepkg.NewInMemoryStore
	NewChromemStore  = storepkg.NewChromemStore
	NewTieredCache   = cachepkg.NewTieredCache
	NewSyncManager   = syncpkg.NewSyncManager
	NewRouter        = routerpkg.NewRouter
	AutoEmbedder     = embedpkg.AutoEmbedder
	HashEmbedding    = embedpkg.HashEmbedding
)
