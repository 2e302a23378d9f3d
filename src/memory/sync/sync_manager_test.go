package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsynth-io/crossmem/src/memory/embed"
	"github.com/devsynth-io/crossmem/src/memory/model"
	"github.com/devsynth-io/crossmem/src/memory/store"
)

// plainStore hides the in-memory store's transaction and snapshot
// capabilities so the generic full-copy fallback is exercised.
type plainStore struct {
	inner *store.InMemoryStore
}

func newPlainStore() *plainStore {
	return &plainStore{inner: store.NewInMemoryStore()}
}

func (p *plainStore) Store(ctx context.Context, item model.MemoryItem) (string, error) {
	return p.inner.Store(ctx, item)
}

func (p *plainStore) Retrieve(ctx context.Context, id string) (*model.MemoryItem, error) {
	return p.inner.Retrieve(ctx, id)
}

func (p *plainStore) Search(ctx context.Context, q store.Query) ([]model.MemoryItem, error) {
	return p.inner.Search(ctx, q)
}

func (p *plainStore) Delete(ctx context.Context, id string) (bool, error) {
	return p.inner.Delete(ctx, id)
}

// optOutStore additionally declares that full scans are not safe,
// opting out of the generic fallback.
type optOutStore struct {
	*plainStore
}

func (optOutStore) Capabilities() store.Capability { return 0 }

func newManager(t *testing.T, stores map[string]store.Store, order []string) *SyncManager {
	t.Helper()
	registry := store.NewRegistry()
	for _, name := range order {
		require.NoError(t, registry.Register(name, stores[name]))
	}
	return NewSyncManager(registry, embed.HashEmbedder{}, nil)
}

func TestTransactionAtomicity(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	beta := store.NewInMemoryStore()
	sm := newManager(t, map[string]store.Store{"alpha": alpha, "beta": beta}, []string{"alpha", "beta"})

	boom := errors.New("boom")
	err := sm.Transaction(ctx, []string{"alpha", "beta"}, func(ctx context.Context) error {
		_, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "doomed"})
		require.NoError(t, err)
		return boom
	})

	var rb *RollbackError
	require.ErrorAs(t, err, &rb)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rb.RestoreFailures)

	got, err := alpha.Retrieve(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, got, "write must be rolled back")
	assert.False(t, alpha.IsTransactionActive("1"))
}

func TestTransactionCommitInvariant(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	beta := store.NewInMemoryStore()
	sm := newManager(t, map[string]store.Store{"alpha": alpha, "beta": beta}, []string{"alpha", "beta"})

	err := sm.Transaction(ctx, []string{"alpha", "beta"}, func(ctx context.Context) error {
		if _, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "kept"}); err != nil {
			return err
		}
		_, err := beta.Store(ctx, model.MemoryItem{ID: "1", Content: "kept"})
		return err
	})
	require.NoError(t, err)

	for _, st := range []*store.InMemoryStore{alpha, beta} {
		got, err := st.Retrieve(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "kept", got.Content)
	}
}

func TestTransactionGenericFallbackRestores(t *testing.T) {
	ctx := context.Background()
	plain := newPlainStore()
	_, err := plain.Store(ctx, model.MemoryItem{ID: "keep", Content: "original"})
	require.NoError(t, err)

	sm := newManager(t, map[string]store.Store{"plain": plain}, []string{"plain"})

	err = sm.Transaction(ctx, []string{"plain"}, func(ctx context.Context) error {
		if _, err := plain.Store(ctx, model.MemoryItem{ID: "keep", Content: "mutated"}); err != nil {
			return err
		}
		if _, err := plain.Store(ctx, model.MemoryItem{ID: "new", Content: "inserted"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	var rb *RollbackError
	require.ErrorAs(t, err, &rb)

	kept, err := plain.Retrieve(ctx, "keep")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "original", kept.Content)

	inserted, err := plain.Retrieve(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, inserted)
}

func TestTransactionRejectsIncapableStore(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	optOut := optOutStore{newPlainStore()}
	sm := newManager(t, map[string]store.Store{"alpha": alpha, "optout": optOut}, []string{"alpha", "optout"})

	called := false
	err := sm.Transaction(ctx, []string{"alpha", "optout"}, func(context.Context) error {
		called = true
		return nil
	})

	var unsupported *UnsupportedTransactionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "optout", unsupported.Store)
	assert.False(t, called, "scope must never run")
	assert.False(t, alpha.IsTransactionActive("tx"), "no participant may be left open")
}

// snapshotFailStore captures via snapshots but the backend refuses.
type snapshotFailStore struct {
	*plainStore
}

func (snapshotFailStore) Snapshot(context.Context) (store.State, error) {
	return nil, errors.New("snapshot backend down")
}

func (snapshotFailStore) Restore(context.Context, store.State) error { return nil }

// restoreFailStore snapshots fine but cannot be restored.
type restoreFailStore struct {
	*plainStore
}

func (r restoreFailStore) Snapshot(ctx context.Context) (store.State, error) {
	return r.inner.Snapshot(ctx)
}

func (restoreFailStore) Restore(context.Context, store.State) error {
	return errors.New("restore backend down")
}

// mutationGuardStore counts every write and delete reaching the
// backend. Seed it through .inner so seeding is not counted.
type mutationGuardStore struct {
	*plainStore
	writes  int
	deletes int
}

func (g *mutationGuardStore) Store(ctx context.Context, item model.MemoryItem) (string, error) {
	g.writes++
	return g.plainStore.Store(ctx, item)
}

func (g *mutationGuardStore) Delete(ctx context.Context, id string) (bool, error) {
	g.deletes++
	return g.plainStore.Delete(ctx, id)
}

func TestTransactionCaptureFailureLeavesCapturedStoresUntouched(t *testing.T) {
	ctx := context.Background()
	guard := &mutationGuardStore{plainStore: newPlainStore()}
	_, err := guard.inner.Store(ctx, model.MemoryItem{ID: "keep", Content: "original"})
	require.NoError(t, err)
	snap := snapshotFailStore{newPlainStore()}
	sm := newManager(t, map[string]store.Store{"guard": guard, "snap": snap}, []string{"guard", "snap"})

	err = sm.Transaction(ctx, []string{"guard", "snap"}, func(context.Context) error {
		t.Fatal("scope must not run")
		return nil
	})

	var unsupported *UnsupportedTransactionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "snap", unsupported.Store)

	// Nothing was mutated before the capture failed, so nothing may be
	// cleared or rewritten on the stores captured earlier.
	assert.Zero(t, guard.deletes, "untouched store must not be cleared")
	assert.Zero(t, guard.writes, "untouched store must not be rewritten")
	kept, err := guard.Retrieve(ctx, "keep")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "original", kept.Content)
}

func TestTransactionCaptureFailureReleasesOpenTransactions(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	snap := snapshotFailStore{newPlainStore()}
	sm := newManager(t, map[string]store.Store{"alpha": alpha, "snap": snap}, []string{"alpha", "snap"})

	err := sm.Transaction(ctx, []string{"alpha", "snap"}, func(context.Context) error {
		t.Fatal("scope must not run")
		return nil
	})
	var unsupported *UnsupportedTransactionError
	require.ErrorAs(t, err, &unsupported)

	// alpha rejects overlapping transactions, so a fresh begin proves
	// the one opened during capture was rolled back.
	txID, err := alpha.BeginTransaction(ctx, "after")
	require.NoError(t, err)
	require.NoError(t, alpha.RollbackTransaction(ctx, txID))
}

func TestRollbackCollectsRestoreFailures(t *testing.T) {
	ctx := context.Background()
	flaky := restoreFailStore{newPlainStore()}
	beta := store.NewInMemoryStore()
	sm := newManager(t, map[string]store.Store{"flaky": flaky, "beta": beta}, []string{"flaky", "beta"})

	boom := errors.New("boom")
	err := sm.Transaction(ctx, []string{"flaky", "beta"}, func(ctx context.Context) error {
		if _, err := flaky.Store(ctx, model.MemoryItem{ID: "f1", Content: "dirty"}); err != nil {
			return err
		}
		if _, err := beta.Store(ctx, model.MemoryItem{ID: "b1", Content: "dirty"}); err != nil {
			return err
		}
		return boom
	})

	var rb *RollbackError
	require.ErrorAs(t, err, &rb)
	assert.ErrorIs(t, rb.Cause, boom)
	require.Contains(t, rb.RestoreFailures, "flaky")

	// One participant failing to restore must not stop the others.
	got, err := beta.Retrieve(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionUnknownStore(t *testing.T) {
	sm := newManager(t, map[string]store.Store{"alpha": store.NewInMemoryStore()}, []string{"alpha"})
	err := sm.Transaction(context.Background(), []string{"alpha", "ghost"}, func(context.Context) error {
		t.Fatal("scope must not run")
		return nil
	})
	var unknown *store.UnknownStoreError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
}

func TestQueueFlushBroadcasts(t *testing.T) {
	ctx := context.Background()
	items := store.NewInMemoryStore()
	docs := store.NewInMemoryStore()
	vectors, err := store.NewChromemStore("flush-test", nil)
	require.NoError(t, err)
	sm := newManager(t,
		map[string]store.Store{"items": items, "docs": docs, "vector": vectors},
		[]string{"items", "docs", "vector"})

	item := model.MemoryItem{ID: "r1", Content: "replicate me", MemoryType: model.TypeKnowledge}
	_, err = items.Store(ctx, item)
	require.NoError(t, err)
	sm.QueueUpdate("items", item)
	assert.Equal(t, 1, sm.QueueLen())

	errs := sm.FlushQueue(ctx)
	assert.Empty(t, errs)
	assert.Zero(t, sm.QueueLen(), "queue must drain")

	replicated, err := docs.Retrieve(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, replicated)
	assert.Equal(t, "replicate me", replicated.Content)

	vec, err := vectors.RetrieveVector(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, vec, "vector store must receive a translated vector")
	assert.Equal(t, "replicate me", vec.Content)
	assert.NotEmpty(t, vec.Embedding)
	assert.Equal(t, string(model.TypeKnowledge), vec.Metadata["memory_type"])
}

func TestFlushQueueCollectsPerStoreFailures(t *testing.T) {
	ctx := context.Background()
	items := store.NewInMemoryStore()
	failing := failingStore{}
	docs := store.NewInMemoryStore()
	sm := newManager(t,
		map[string]store.Store{"items": items, "failing": failing, "docs": docs},
		[]string{"items", "failing", "docs"})

	sm.QueueUpdate("items", model.MemoryItem{ID: "x", Content: "payload"})
	errs := sm.FlushQueue(ctx)
	require.Len(t, errs, 1, "only the failing store errors")

	replicated, err := docs.Retrieve(ctx, "x")
	require.NoError(t, err)
	assert.NotNil(t, replicated, "healthy stores still receive the write")
}

type failingStore struct{}

func (failingStore) Store(context.Context, model.MemoryItem) (string, error) {
	return "", errors.New("backend down")
}
func (failingStore) Retrieve(context.Context, string) (*model.MemoryItem, error) {
	return nil, errors.New("backend down")
}
func (failingStore) Search(context.Context, store.Query) ([]model.MemoryItem, error) {
	return nil, errors.New("backend down")
}
func (failingStore) Delete(context.Context, string) (bool, error) {
	return false, errors.New("backend down")
}

func TestCrossStoreQueryMemoization(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	beta := store.NewInMemoryStore()
	sm := newManager(t, map[string]store.Store{"alpha": alpha, "beta": beta}, []string{"alpha", "beta"})

	_, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple pie"})
	require.NoError(t, err)

	first, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	assert.Empty(t, errs)
	require.Len(t, first["alpha"], 1)
	assert.Equal(t, "alpha", first["alpha"][0].Item.Metadata[model.SourceStoreKey])
	assert.Equal(t, 1, sm.CacheSize())

	// New matching content must not surface until the cache is cleared.
	_, err = beta.Store(ctx, model.MemoryItem{ID: "2", Content: "apple tart"})
	require.NoError(t, err)

	second, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	assert.Empty(t, errs)
	assert.Empty(t, second["beta"], "cached answer is returned verbatim")

	sm.ClearQueryCache()
	assert.Zero(t, sm.CacheSize())

	third, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	assert.Empty(t, errs)
	require.Len(t, third["beta"], 1)
	assert.Equal(t, "apple tart", third["beta"][0].Item.Content)
}

func TestCrossStoreQueryCacheSizeCountsDistinctQueries(t *testing.T) {
	ctx := context.Background()
	sm := newManager(t, map[string]store.Store{"alpha": store.NewInMemoryStore()}, []string{"alpha"})

	sm.CrossStoreQuery(ctx, "one", nil)
	sm.CrossStoreQuery(ctx, "two", nil)
	sm.CrossStoreQuery(ctx, "one", nil)
	assert.Equal(t, 2, sm.CacheSize())
}

func TestCrossStoreQuerySkipsFailingStore(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	_, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"})
	require.NoError(t, err)
	sm := newManager(t,
		map[string]store.Store{"alpha": alpha, "failing": failingStore{}},
		[]string{"alpha", "failing"})

	grouped, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	require.Len(t, errs, 1)
	require.Len(t, grouped["alpha"], 1, "healthy store still answers")
	_, present := grouped["failing"]
	assert.False(t, present)
}

func TestQueueUpdateConcurrentWithFlush(t *testing.T) {
	ctx := context.Background()
	items := store.NewInMemoryStore()
	docs := store.NewInMemoryStore()
	sm := newManager(t, map[string]store.Store{"items": items, "docs": docs}, []string{"items", "docs"})

	done := make(chan struct{})
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		for {
			select {
			case <-done:
				return
			default:
				sm.FlushQueue(ctx)
			}
		}
	}()

	const enqueuers = 4
	const perEnqueuer = 25
	var wg gosync.WaitGroup
	for w := 0; w < enqueuers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perEnqueuer; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				sm.QueueUpdate("items", model.MemoryItem{ID: id, Content: "payload " + id})
			}
		}(w)
	}
	wg.Wait()
	close(done)
	<-flusherDone

	// Records enqueued after the flusher's last drain stay pending and
	// come through on the next flush.
	assert.Empty(t, sm.FlushQueue(ctx))
	assert.Zero(t, sm.QueueLen())

	replicated, err := docs.Search(ctx, store.All)
	require.NoError(t, err)
	assert.Len(t, replicated, enqueuers*perEnqueuer, "every record must reach the target exactly once")
}

func TestCrossStoreQueryDoesNotMemoizeErrors(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	_, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"})
	require.NoError(t, err)
	sm := newManager(t,
		map[string]store.Store{"alpha": alpha, "failing": failingStore{}},
		[]string{"alpha", "failing"})

	_, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	require.Len(t, errs, 1)
	assert.Zero(t, sm.CacheSize(), "partial answers must not be cached")

	_, errs = sm.CrossStoreQuery(ctx, "apple", nil)
	require.Len(t, errs, 1, "the failing store is retried, not hidden by a cache hit")
}

func TestCrossStoreQueryReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	_, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"})
	require.NoError(t, err)
	sm := newManager(t, map[string]store.Store{"alpha": alpha}, []string{"alpha"})

	first, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	require.Empty(t, errs)
	first["alpha"] = nil
	delete(first, "alpha")

	second, errs := sm.CrossStoreQuery(ctx, "apple", nil)
	require.Empty(t, errs)
	require.Len(t, second["alpha"], 1, "caller mutations must not reach the cached copy")
}

func TestTaggingDoesNotMutateStoredItem(t *testing.T) {
	ctx := context.Background()
	alpha := store.NewInMemoryStore()
	_, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"})
	require.NoError(t, err)
	sm := newManager(t, map[string]store.Store{"alpha": alpha}, []string{"alpha"})

	grouped, _ := sm.CrossStoreQuery(ctx, "apple", nil)
	require.Len(t, grouped["alpha"], 1)
	assert.Equal(t, "alpha", grouped["alpha"][0].Source)

	stored, err := alpha.Retrieve(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	_, tagged := stored.Metadata[model.SourceStoreKey]
	assert.False(t, tagged, "provenance tags must never be persisted")
}
