// Package sync coordinates writes across heterogeneous memory stores:
// atomic multi-store transactions with rollback, an asynchronous
// broadcast replication queue, and a memoized cross-store query cache.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/devsynth-io/crossmem/src/concurrent"
	"github.com/devsynth-io/crossmem/src/logging"
	"github.com/devsynth-io/crossmem/src/memory/embed"
	"github.com/devsynth-io/crossmem/src/memory/model"
	"github.com/devsynth-io/crossmem/src/memory/store"
)

const defaultFlushWorkers = 4

// SyncManager owns transaction scoping, the pending replication queue,
// and the cross-store query cache. It shares the adapter registry with
// the memory manager and the query router.
type SyncManager struct {
	registry   *store.Registry
	translator *Translator
	logger     logging.Logger
	workers    int

	queueMu gosync.Mutex
	queue   []model.MemoryRecord

	cacheMu    gosync.Mutex
	queryCache map[string]map[string][]model.QueryResult
}

// NewSyncManager wires a manager over the shared registry. Embedder and
// logger may be nil; deterministic hashing and a no-op logger are used.
func NewSyncManager(registry *store.Registry, embedder embed.Embedder, logger logging.Logger) *SyncManager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SyncManager{
		registry:   registry,
		translator: NewTranslator(embedder),
		logger:     logger,
		workers:    defaultFlushWorkers,
		queryCache: make(map[string]map[string][]model.QueryResult),
	}
}

// Translator exposes the representation translation shared with the
// memory manager's synchronize operation.
func (sm *SyncManager) Translator() *Translator { return sm.translator }

// Transaction runs fn inside an all-or-nothing scope over the named
// stores. Before any mutation every participant is classified and its
// pre-transaction state captured, in the order given. If fn returns an
// error every participant is restored in capture order and the error
// comes back wrapped in a *RollbackError. Stores not named are
// unaffected. Concurrent transactions over overlapping store sets must
// be serialized by the caller.
func (sm *SyncManager) Transaction(ctx context.Context, names []string, fn func(ctx context.Context) error) error {
	type enrolled struct {
		name string
		st   store.Store
		kind participantKind
	}

	plan := make([]enrolled, 0, len(names))
	for _, name := range names {
		st, err := sm.registry.Resolve(name)
		if err != nil {
			return err
		}
		kind, ok := classify(st)
		if !ok {
			return &UnsupportedTransactionError{Store: name}
		}
		plan = append(plan, enrolled{name: name, st: st, kind: kind})
	}

	participants := make([]*participant, 0, len(plan))
	for _, e := range plan {
		p, err := capture(ctx, e.name, e.st, e.kind)
		if err != nil {
			// Nothing has been mutated yet, so no participant is
			// restored: earlier captures are released untouched, which
			// for native participants closes the open transaction and
			// for the rest just discards the copy.
			reason := err
			for _, prev := range participants {
				if relErr := prev.release(ctx); relErr != nil {
					sm.logger.Error("transaction release failed", "store", prev.name, "error", relErr)
					reason = errors.Join(reason, fmt.Errorf("release %q: %w", prev.name, relErr))
				}
			}
			return &UnsupportedTransactionError{Store: e.name, Reason: reason}
		}
		participants = append(participants, p)
	}

	if err := fn(ctx); err != nil {
		failures := sm.rollback(ctx, participants)
		return &RollbackError{Cause: err, RestoreFailures: failures}
	}

	var commitErrs []error
	for _, p := range participants {
		if err := p.commit(ctx); err != nil {
			sm.logger.Error("transaction commit failed", "store", p.name, "error", err)
			commitErrs = append(commitErrs, err)
		}
	}
	return errors.Join(commitErrs...)
}

// rollback restores every participant in capture order, collecting
// failures instead of stopping at the first one.
func (sm *SyncManager) rollback(ctx context.Context, participants []*participant) map[string]error {
	var failures map[string]error
	for _, p := range participants {
		if err := p.restore(ctx); err != nil {
			sm.logger.Error("transaction restore failed", "store", p.name, "error", err)
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[p.name] = err
		}
	}
	return failures
}

// QueueUpdate appends a pending replication record without touching any
// backend.
func (sm *SyncManager) QueueUpdate(storeName string, item model.MemoryItem) {
	record := model.MemoryRecord{Item: item.Clone(), Source: storeName}
	sm.queueMu.Lock()
	sm.queue = append(sm.queue, record)
	sm.queueMu.Unlock()
}

// QueueLen reports the number of pending replication records.
func (sm *SyncManager) QueueLen() int {
	sm.queueMu.Lock()
	defer sm.queueMu.Unlock()
	return len(sm.queue)
}

type replicationTask struct {
	record model.MemoryRecord
	target string
}

// FlushQueue drains the pending queue and broadcasts each record to
// every other registered store, translating representation per target.
// The queue is swapped out under the lock but the per-store writes run
// outside it, so enqueueing threads are never blocked on slow backends.
// Per-store failures are collected; records enqueued while a flush is
// running stay pending for the next flush.
func (sm *SyncManager) FlushQueue(ctx context.Context) []error {
	sm.queueMu.Lock()
	pending := sm.queue
	sm.queue = nil
	sm.queueMu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	names := sm.registry.Names()
	tasks := make([]replicationTask, 0, len(pending)*len(names))
	for _, record := range pending {
		for _, name := range names {
			if name == record.Source {
				continue
			}
			tasks = append(tasks, replicationTask{record: record, target: name})
		}
	}

	results := concurrent.ForEachCollect(ctx, tasks, sm.workers, func(ctx context.Context, task replicationTask) error {
		target, err := sm.registry.Resolve(task.target)
		if err != nil {
			return err
		}
		return sm.translator.Write(ctx, task.target, target, task.record.Item)
	})

	var errs []error
	for i, err := range results {
		if err != nil {
			sm.logger.Warn("replication write failed",
				"target", tasks[i].target, "item", tasks[i].record.Item.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// CrossStoreQuery runs query against each named store (all registered
// stores when names is nil), tags every result with its source store,
// and memoizes the grouped map under the literal query string. Only
// fully successful answers are memoized; a run where any store errored
// is recomputed on the next call. A cached answer is returned even if
// store content has changed since, until ClearQueryCache. That
// staleness is a deliberate throughput trade-off. Callers always get
// their own copy of the grouped map.
func (sm *SyncManager) CrossStoreQuery(ctx context.Context, query string, names []string) (map[string][]model.QueryResult, []error) {
	sm.cacheMu.Lock()
	if cached, ok := sm.queryCache[query]; ok {
		sm.cacheMu.Unlock()
		return copyGrouped(cached), nil
	}
	sm.cacheMu.Unlock()

	if names == nil {
		names = sm.registry.Names()
	}

	grouped := make(map[string][]model.QueryResult, len(names))
	var errs []error
	for _, name := range names {
		st, err := sm.registry.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items, err := st.Search(ctx, store.Query{Text: query})
		if err != nil {
			sm.logger.Warn("cross-store query skipped store", "store", name, "error", err)
			errs = append(errs, err)
			continue
		}
		results := make([]model.QueryResult, 0, len(items))
		for _, item := range items {
			results = append(results, model.TagResult(item, name))
		}
		grouped[name] = results
	}

	if len(errs) == 0 {
		sm.cacheMu.Lock()
		sm.queryCache[query] = copyGrouped(grouped)
		sm.cacheMu.Unlock()
	}
	return grouped, errs
}

// copyGrouped shallow-copies a grouped result map so the memoized copy
// and the caller's copy cannot alias each other.
func copyGrouped(grouped map[string][]model.QueryResult) map[string][]model.QueryResult {
	out := make(map[string][]model.QueryResult, len(grouped))
	for name, results := range grouped {
		out[name] = append([]model.QueryResult(nil), results...)
	}
	return out
}

// CacheSize reports the number of distinct query strings memoized.
func (sm *SyncManager) CacheSize() int {
	sm.cacheMu.Lock()
	defer sm.cacheMu.Unlock()
	return len(sm.queryCache)
}

// ClearQueryCache evicts every memoized query.
func (sm *SyncManager) ClearQueryCache() {
	sm.cacheMu.Lock()
	sm.queryCache = make(map[string]map[string][]model.QueryResult)
	sm.cacheMu.Unlock()
}
