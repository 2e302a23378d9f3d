package router

import (
	"context"
	"errors"
	"testing"

	"github.com/devsynth-io/crossmem/src/memory/model"
	"github.com/devsynth-io/crossmem/src/memory/store"
	"github.com/devsynth-io/crossmem/src/memory/sync"
)

func newTestRouter(t *testing.T) (*Router, *store.InMemoryStore, *store.InMemoryStore) {
	t.Helper()
	registry := store.NewRegistry()
	alpha := store.NewInMemoryStore()
	beta := store.NewInMemoryStore()
	if err := registry.Register("alpha", alpha); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register("beta", beta); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sm := sync.NewSyncManager(registry, nil, nil)
	return NewRouter(registry, sm, nil), alpha, beta
}

func TestDirectQuery(t *testing.T) {
	ctx := context.Background()
	r, alpha, beta := newTestRouter(t)
	if _, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := beta.Store(ctx, model.MemoryItem{ID: "2", Content: "apple"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	results, err := r.DirectQuery(ctx, "apple", "alpha")
	if err != nil {
		t.Fatalf("DirectQuery: %v", err)
	}
	if len(results) != 1 || results[0].Source != "alpha" {
		t.Fatalf("DirectQuery = %+v", results)
	}
	if results[0].Item.Metadata[model.SourceStoreKey] != "alpha" {
		t.Fatalf("missing provenance tag: %+v", results[0].Item.Metadata)
	}

	_, err = r.DirectQuery(ctx, "apple", "ghost")
	var unknown *store.UnknownStoreError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStoreError, got %v", err)
	}
}

func TestCascadingQueryVisitsEveryStoreInOrder(t *testing.T) {
	ctx := context.Background()
	r, alpha, beta := newTestRouter(t)
	if _, err := alpha.Store(ctx, model.MemoryItem{ID: "a1", Content: "apple from alpha"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := beta.Store(ctx, model.MemoryItem{ID: "b1", Content: "apple from beta"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	results, errs := r.CascadingQuery(ctx, "apple")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	// Registration order defines priority; results from alpha come
	// first even though beta also matched.
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Source != "alpha" || results[1].Source != "beta" {
		t.Fatalf("order = %s, %s", results[0].Source, results[1].Source)
	}
}

func TestFederatedQueryDeduplicates(t *testing.T) {
	ctx := context.Background()
	r, alpha, beta := newTestRouter(t)
	shared := model.MemoryItem{ID: "dup", Content: "apple everywhere"}
	if _, err := alpha.Store(ctx, shared); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := beta.Store(ctx, shared); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := beta.Store(ctx, model.MemoryItem{ID: "only-beta", Content: "apple tart"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	results, errs := r.FederatedQuery(ctx, "apple")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 after dedup", len(results))
	}
	seen := make(map[string]int)
	for _, res := range results {
		seen[res.Item.ID]++
	}
	if seen["dup"] != 1 {
		t.Fatalf("dup appears %d times, want exactly once", seen["dup"])
	}
}

func TestRouteDefaultsToCrossStore(t *testing.T) {
	ctx := context.Background()
	r, alpha, _ := newTestRouter(t)
	if _, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	res, err := r.Route(ctx, "apple", RouteOptions{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Strategy != StrategyCross {
		t.Fatalf("Strategy = %s, want cross", res.Strategy)
	}
	if len(res.Grouped["alpha"]) != 1 {
		t.Fatalf("Grouped = %+v", res.Grouped)
	}
}

func TestRouteStoreOverridesStrategy(t *testing.T) {
	ctx := context.Background()
	r, alpha, _ := newTestRouter(t)
	if _, err := alpha.Store(ctx, model.MemoryItem{ID: "1", Content: "apple"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	res, err := r.Route(ctx, "apple", RouteOptions{Store: "alpha", Strategy: StrategyFederated})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Strategy != StrategyDirect {
		t.Fatalf("Strategy = %s, want direct", res.Strategy)
	}
}

func TestRouteRejectsUnknownStrategy(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if _, err := r.Route(context.Background(), "apple", RouteOptions{Strategy: "telepathic"}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestContextAwarePolicy(t *testing.T) {
	ctx := context.Background()
	r, alpha, beta := newTestRouter(t)
	if _, err := alpha.Store(ctx, model.MemoryItem{ID: "a1", Content: "apple from alpha"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := beta.Store(ctx, model.MemoryItem{ID: "b1", Content: "apple from beta"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Rule 1: explicit store hint wins.
	res, err := r.ContextAwareQuery(ctx, "apple", map[string]any{"store": "beta"})
	if err != nil {
		t.Fatalf("ContextAwareQuery: %v", err)
	}
	if res.Strategy != StrategyDirect || len(res.Results) != 1 || res.Results[0].Source != "beta" {
		t.Fatalf("store hint = %+v", res)
	}

	// Rule 2: strategy hint.
	res, err = r.ContextAwareQuery(ctx, "apple", map[string]any{"strategy": "federated"})
	if err != nil {
		t.Fatalf("ContextAwareQuery: %v", err)
	}
	if res.Strategy != StrategyFederated {
		t.Fatalf("strategy hint = %s", res.Strategy)
	}

	// Rule 3: store subset. A distinct query string keeps this result
	// out of the memoized entry the next rule would otherwise reuse.
	res, err = r.ContextAwareQuery(ctx, "apple", map[string]any{"stores": []string{"alpha"}})
	if err != nil {
		t.Fatalf("ContextAwareQuery: %v", err)
	}
	if res.Strategy != StrategyCross || len(res.Grouped) != 1 {
		t.Fatalf("subset hint = %+v", res)
	}

	// Rule 4: default to cross-store over everything.
	res, err = r.ContextAwareQuery(ctx, "from", nil)
	if err != nil {
		t.Fatalf("ContextAwareQuery: %v", err)
	}
	if res.Strategy != StrategyCross || len(res.Grouped) != 2 {
		t.Fatalf("default = %+v", res)
	}
}
