// Package concurrent provides the bounded fan-out primitive used for
// replication broadcasts.
package concurrent

import (
	"context"
	"sync"
)

const defaultConcurrency = 10

// ForEachCollect runs fn for every item with bounded concurrency and
// returns one error slot per item, index-aligned with the input. Unlike
// a short-circuiting variant it always visits every item, which the
// replication queue needs so one broken store does not block the rest.
func ForEachCollect[T any](ctx context.Context, items []T, maxConcurrency int, fn func(context.Context, T) error) []error {
	if len(items) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}

	errs := make([]error, len(items))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
				errs[idx] = fn(ctx, val)
			}
		}(i, item)
	}

	wg.Wait()
	return errs
}
