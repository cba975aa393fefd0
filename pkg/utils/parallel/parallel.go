// Package parallel runs independent network operations with a bounded
// worker count. There is no ordering requirement between items; all errors
// are collected rather than stopping at the first failure.
package parallel

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn for every item with at most limit workers. All items are
// attempted even when some fail; the returned error joins every failure.
// A cancelled context stops scheduling of further items.
func ForEach[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) error) error {
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	var mu sync.Mutex
	var errs []error

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}
