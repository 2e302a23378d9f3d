// Package router provides a uniform entry point over the query
// strategies of the memory engine. Every strategy tags results with
// their source store so callers keep provenance.
package router

import (
	"context"
	"fmt"

	"github.com/devsynth-io/crossmem/src/logging"
	"github.com/devsynth-io/crossmem/src/memory/model"
	"github.com/devsynth-io/crossmem/src/memory/store"
	"github.com/devsynth-io/crossmem/src/memory/sync"
)

// Strategy names accepted by Route.
type Strategy string

const (
	StrategyDirect       Strategy = "direct"
	StrategyCross        Strategy = "cross"
	StrategyCascading    Strategy = "cascading"
	StrategyFederated    Strategy = "federated"
	StrategyContextAware Strategy = "context_aware"
)

// RouteOptions select a strategy. Store wins over Strategy; leaving
// both empty defaults to a cross-store query over all stores.
type RouteOptions struct {
	Store    string
	Strategy Strategy
	Context  map[string]any
}

// RouteResult carries the outcome of one routed query. Results is
// populated by the flat strategies, Grouped by the cross-store
// strategy. Errors lists the stores skipped because they failed.
type RouteResult struct {
	Strategy Strategy
	Results  []model.QueryResult
	Grouped  map[string][]model.QueryResult
	Errors   []error
}

// Router dispatches queries across the registered stores. It shares
// the registry handle with the memory manager and delegates grouped
// queries to the sync manager so its memoization applies.
type Router struct {
	registry *store.Registry
	sync     *sync.SyncManager
	logger   logging.Logger
}

func NewRouter(registry *store.Registry, sm *sync.SyncManager, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Router{registry: registry, sync: sm, logger: logger}
}

// DirectQuery queries exactly one named store.
func (r *Router) DirectQuery(ctx context.Context, query, storeName string) ([]model.QueryResult, error) {
	st, err := r.registry.Resolve(storeName)
	if err != nil {
		return nil, err
	}
	items, err := st.Search(ctx, store.Query{Text: query})
	if err != nil {
		return nil, fmt.Errorf("query store %q: %w", storeName, err)
	}
	results := make([]model.QueryResult, 0, len(items))
	for _, item := range items {
		results = append(results, model.TagResult(item, storeName))
	}
	return results, nil
}

// CrossStoreQuery delegates to the sync manager's memoized grouped
// query.
func (r *Router) CrossStoreQuery(ctx context.Context, query string, stores []string) (map[string][]model.QueryResult, []error) {
	return r.sync.CrossStoreQuery(ctx, query, stores)
}

// CascadingQuery queries every store in registration order and returns
// one flat sequence accumulating all tagged results. A failing store is
// skipped and reported; it never short-circuits the cascade.
func (r *Router) CascadingQuery(ctx context.Context, query string) ([]model.QueryResult, []error) {
	var results []model.QueryResult
	var errs []error
	for _, name := range r.registry.Names() {
		st, err := r.registry.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items, err := st.Search(ctx, store.Query{Text: query})
		if err != nil {
			r.logger.Warn("cascading query skipped store", "store", name, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, item := range items {
			results = append(results, model.TagResult(item, name))
		}
	}
	return results, errs
}

// FederatedQuery queries all stores and deduplicates the combined
// results so no two entries refer to the same identity. Identity is
// the item id, falling back to content equality for items without one.
func (r *Router) FederatedQuery(ctx context.Context, query string) ([]model.QueryResult, []error) {
	all, errs := r.CascadingQuery(ctx, query)
	seen := make(map[string]struct{}, len(all))
	results := make([]model.QueryResult, 0, len(all))
	for _, res := range all {
		key := "id:" + res.Item.ID
		if res.Item.ID == "" {
			key = "content:" + res.Item.Content
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, res)
	}
	return results, errs
}

// ContextAwareQuery picks a strategy from caller-supplied hints using a
// fixed rule table:
//
//  1. context["store"] (string) routes a direct query to that store;
//  2. context["strategy"] (string) selects that strategy;
//  3. context["stores"] ([]string) runs a cross-store query over the
//     subset;
//  4. anything else runs a cross-store query over all stores.
func (r *Router) ContextAwareQuery(ctx context.Context, query string, hints map[string]any) (*RouteResult, error) {
	if name, ok := hints["store"].(string); ok && name != "" {
		results, err := r.DirectQuery(ctx, query, name)
		if err != nil {
			return nil, err
		}
		return &RouteResult{Strategy: StrategyDirect, Results: results}, nil
	}
	if strat, ok := hints["strategy"].(string); ok && strat != "" {
		return r.Route(ctx, query, RouteOptions{Strategy: Strategy(strat)})
	}
	if subset, ok := hints["stores"].([]string); ok && len(subset) > 0 {
		grouped, errs := r.CrossStoreQuery(ctx, query, subset)
		return &RouteResult{Strategy: StrategyCross, Grouped: grouped, Errors: errs}, nil
	}
	grouped, errs := r.CrossStoreQuery(ctx, query, nil)
	return &RouteResult{Strategy: StrategyCross, Grouped: grouped, Errors: errs}, nil
}

// Route is the single dispatch point. Store selects a direct query;
// Strategy selects one of cross, cascading, federated, or
// context-aware; omitting both defaults to a cross-store query over
// all stores.
func (r *Router) Route(ctx context.Context, query string, opts RouteOptions) (*RouteResult, error) {
	if opts.Store != "" {
		results, err := r.DirectQuery(ctx, query, opts.Store)
		if err != nil {
			return nil, err
		}
		return &RouteResult{Strategy: StrategyDirect, Results: results}, nil
	}

	switch opts.Strategy {
	case "", StrategyCross:
		grouped, errs := r.CrossStoreQuery(ctx, query, nil)
		return &RouteResult{Strategy: StrategyCross, Grouped: grouped, Errors: errs}, nil
	case StrategyCascading:
		results, errs := r.CascadingQuery(ctx, query)
		return &RouteResult{Strategy: StrategyCascading, Results: results, Errors: errs}, nil
	case StrategyFederated:
		results, errs := r.FederatedQuery(ctx, query)
		return &RouteResult{Strategy: StrategyFederated, Results: results, Errors: errs}, nil
	case StrategyContextAware:
		return r.ContextAwareQuery(ctx, query, opts.Context)
	default:
		return nil, fmt.Errorf("unknown query strategy %q", opts.Strategy)
	}
}
