// Command demo wires an in-memory store and a chromem-backed vector
// store through the memory manager, then exercises synchronization,
// routing, and the tiered cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/devsynth-io/crossmem"
	"github.com/devsynth-io/crossmem/src/logging"
	"github.com/devsynth-io/crossmem/src/memory/embed"
	"github.com/devsynth-io/crossmem/src/memory/model"
)

func main() {
	var (
		collection = flag.String("collection", "demo-memory", "Chromem collection name for the vector store")
		query      = flag.String("query", "cache", "Query text routed across the stores")
	)
	flag.Parse()

	ctx := context.Background()
	logger := logging.NewTextLogger(slog.LevelInfo)

	mgr, err := crossmem.NewManager(crossmem.Options{
		CacheSizes: []int{2, 8},
		Embedder:   embed.AutoEmbedder(),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("create manager: %v", err)
	}

	items := crossmem.NewInMemoryStore()
	vectors, err := crossmem.NewChromemStore(*collection, func(ctx context.Context, text string) ([]float32, error) {
		return mgr.EmbedText(ctx, text), nil
	})
	if err != nil {
		log.Fatalf("create vector store: %v", err)
	}
	if err := mgr.RegisterAdapter("items", items); err != nil {
		log.Fatalf("register items store: %v", err)
	}
	if err := mgr.RegisterAdapter("vector", vectors); err != nil {
		log.Fatalf("register vector store: %v", err)
	}

	seed := []crossmem.MemoryItem{
		{Content: "the tiered cache promotes hot entries to faster layers", MemoryType: crossmem.TypeKnowledge},
		{Content: "rollback restores every participant in capture order", MemoryType: crossmem.TypeDocumentation},
		{Content: "federated queries deduplicate results by identity", MemoryType: crossmem.TypeKnowledge},
	}
	for _, item := range seed {
		id, err := items.Store(ctx, item)
		if err != nil {
			log.Fatalf("seed item: %v", err)
		}
		mgr.Sync().QueueUpdate("items", model.MemoryItem{ID: id, Content: item.Content, MemoryType: item.MemoryType})
	}

	// Broadcast the queued writes into the vector store.
	if errs := mgr.Sync().FlushQueue(ctx); len(errs) > 0 {
		log.Fatalf("flush queue: %v", errs[0])
	}

	report, err := mgr.Synchronize(ctx, "items", "vector")
	if err != nil {
		log.Fatalf("synchronize: %v", err)
	}
	fmt.Printf("synchronized %d items (%d failures)\n", report.Synced, len(report.Failures))

	res, err := mgr.Route(ctx, *query, crossmem.RouteOptions{Strategy: crossmem.StrategyFederated})
	if err != nil {
		log.Fatalf("route: %v", err)
	}
	fmt.Printf("federated results for %q:\n", *query)
	for _, r := range res.Results {
		fmt.Printf("  [%s] %s\n", r.Source, r.Item.Content)
	}

	vecs, err := mgr.SearchMemory(ctx, *query, crossmem.SearchOptions{Limit: 3})
	if err != nil {
		log.Fatalf("search memory: %v", err)
	}
	fmt.Printf("top similarity matches:\n")
	for _, v := range vecs {
		fmt.Printf("  %s\n", v.Content)
	}

	id, err := mgr.Store(ctx, "session context for the demo run", crossmem.TypeContext)
	if err != nil {
		log.Fatalf("store context: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := mgr.Retrieve(ctx, id, crossmem.TypeContext); err != nil {
			log.Fatalf("retrieve context: %v", err)
		}
	}

	for i, s := range mgr.CacheStats() {
		fmt.Printf("cache layer %d: %d hits, %d misses\n", i, s.Hits, s.Misses)
	}
}
