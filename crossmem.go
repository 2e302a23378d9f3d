// Package crossmem re-exports the cross-store memory engine so callers
// can depend on a single import path.
package crossmem

import (
	"github.com/devsynth-io/crossmem/src/logging"
	"github.com/devsynth-io/crossmem/src/memory"
)

type (
	Manager       = memory.Manager
	Options       = memory.Options
	SearchOptions = memory.SearchOptions
	SyncReport    = memory.SyncReport

	MemoryType   = memory.MemoryType
	MemoryItem   = memory.MemoryItem
	MemoryVector = memory.MemoryVector
	QueryResult  = memory.QueryResult

	Store          = memory.Store
	Registry       = memory.Registry
	InMemoryStore  = memory.InMemoryStore
	PostgresStore  = memory.PostgresStore
	MongoStore     = memory.MongoStore
	GraphStore     = memory.GraphStore
	ChromemStore   = memory.ChromemStore
	VectorSearcher = memory.VectorSearcher

	TieredCache = memory.TieredCache
	CacheStats  = memory.CacheStats

	SyncManager  = memory.SyncManager
	Router       = memory.Router
	RouteOptions = memory.RouteOptions
	RouteResult  = memory.RouteResult
	Strategy     = memory.Strategy

	Embedder = memory.Embedder
	Logger   = logging.Logger

	UnknownStoreError           = memory.UnknownStoreError
	UnsupportedTransactionError = memory.UnsupportedTransactionError
	RollbackError               = memory.RollbackError
	TranslationError            = memory.TranslationError
)

const (
	TypeCode          = memory.TypeCode
	TypeDocumentation = memory.TypeDocumentation
	TypeContext       = memory.TypeContext
	TypeTaskHistory   = memory.TypeTaskHistory
	TypeKnowledge     = memory.TypeKnowledge
	TypeSolution      = memory.TypeSolution
	TypeErrorLog      = memory.TypeErrorLog

	StrategyDirect       = memory.StrategyDirect
	StrategyCross        = memory.StrategyCross
	StrategyCascading    = memory.StrategyCascading
	StrategyFederated    = memory.StrategyFederated
	StrategyContextAware = memory.StrategyContextAware
)

var (
	NewManager       = memory.NewManager
	NewInMemoryStore = memory.NewInMemoryStore
	NewChromemStore  = memory.NewChromemStore
	NewTieredCache   = memory.NewTieredCache
	AutoEmbedder     = memory.AutoEmbedder
	HashEmbedding    = memory.HashEmbedding
)
