// Package workqueue provides bounded-parallel fan-out for the per-submodule
// work every composite operation repeats (fetch, merge, cherry-pick,
// rebase, status), built on errgroup's SetLimit.
package workqueue

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/git-meta/git-meta/internal/metaerr"
)

// DefaultParallelism is used when a caller passes limit <= 0.
const DefaultParallelism = 8

// Item is one unit of work, identified by name (a submodule path) for
// error reporting.
type Item[T any] struct {
	Name string
	Val  T
}

// Run executes fn over items with at most limit goroutines in flight,
// collecting every error (rather than failing fast) so callers like the
// merge engine can report every submodule's outcome, not just the first
// failure. Results are returned in the same order as items.
func Run[T, R any](ctx context.Context, items []Item[T], limit int, fn func(context.Context, Item[T]) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultParallelism
	}
	results := make([]R, len(items))
	errs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			r, err := fn(gctx, it)
			results[i] = r
			if err != nil {
				errs[i] = newItemError(it.Name, err)
			}
			return nil // collect, don't fail fast
		})
	}
	_ = g.Wait()

	var collected []error
	for _, e := range errs {
		if e != nil {
			collected = append(collected, e)
		}
	}
	return results, metaerr.NewMultiError(collected)
}

// RunFailFast is like Run but aborts remaining work as soon as any item
// errors, for operations (e.g. Prepare) where a single bad submodule makes
// continuing pointless.
func RunFailFast[T, R any](ctx context.Context, items []Item[T], limit int, fn func(context.Context, Item[T]) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultParallelism
	}
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			r, err := fn(gctx, it)
			results[i] = r
			if err != nil {
				return newItemError(it.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func newItemError(name string, err error) error {
	return &itemError{name: name, err: err}
}

type itemError struct {
	name string
	err  error
}

func (e *itemError) Error() string { return e.name + ": " + e.err.Error() }
func (e *itemError) Unwrap() error { return e.err }
