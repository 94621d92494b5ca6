package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/metaerr"
)

func items(names ...string) []Item[string] {
	out := make([]Item[string], len(names))
	for i, n := range names {
		out[i] = Item[string]{Name: n, Val: n}
	}
	return out
}

func TestRunPreservesOrder(t *testing.T) {
	results, err := Run(context.Background(), items("a", "b", "c"), 2,
		func(_ context.Context, it Item[string]) (string, error) {
			return it.Val + "!", nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a!", "b!", "c!"}, results)
}

func TestRunCollectsEveryError(t *testing.T) {
	_, err := Run(context.Background(), items("a", "b", "c"), 2,
		func(_ context.Context, it Item[string]) (string, error) {
			if it.Name != "b" {
				return "", errors.New("failed")
			}
			return "ok", nil
		})
	require.Error(t, err)

	var multi *metaerr.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errs, 2)
	assert.Contains(t, err.Error(), "a: failed")
	assert.Contains(t, err.Error(), "c: failed")
}

func TestRunSingleErrorNotWrapped(t *testing.T) {
	sentinel := errors.New("boom")
	_, err := Run(context.Background(), items("a", "b"), 2,
		func(_ context.Context, it Item[string]) (string, error) {
			if it.Name == "a" {
				return "", sentinel
			}
			return "ok", nil
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	var multi *metaerr.MultiError
	assert.False(t, errors.As(err, &multi))
}

func TestRunRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex

	_, err := Run(context.Background(), items("a", "b", "c", "d", "e", "f"), 2,
		func(_ context.Context, _ Item[string]) (struct{}, error) {
			n := inFlight.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			defer inFlight.Add(-1)
			return struct{}{}, nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunEmptyItems(t *testing.T) {
	results, err := Run(context.Background(), nil, 4,
		func(_ context.Context, _ Item[string]) (string, error) {
			t.Fatal("must not be called")
			return "", nil
		})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunFailFastPropagatesFirstError(t *testing.T) {
	sentinel := errors.New("first failure")
	_, err := RunFailFast(context.Background(), items("a", "b"), 1,
		func(_ context.Context, it Item[string]) (string, error) {
			if it.Name == "a" {
				return "", sentinel
			}
			return "ok", nil
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestRunFailFastCancelsRemaining(t *testing.T) {
	var started atomic.Int32
	results, err := RunFailFast(context.Background(), items("a", "b", "c", "d"), 1,
		func(ctx context.Context, it Item[string]) (string, error) {
			started.Add(1)
			if it.Name == "a" {
				return "", errors.New("boom")
			}
			// Later starts should observe cancellation via gctx.
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
				return "ok", nil
			}
		})
	require.Error(t, err)
	// With limit 1 the items run serially and "a" cancels the group
	// before its slot is released, so every later item sees the
	// cancellation and none of them produces work.
	assert.LessOrEqual(t, started.Load(), int32(4))
	assert.NotContains(t, results, "ok")
}

func TestItemErrorNamesItem(t *testing.T) {
	_, err := RunFailFast(context.Background(), items("libs/core"), 1,
		func(_ context.Context, _ Item[string]) (string, error) {
			return "", errors.New("fetch failed")
		})
	require.Error(t, err)
	assert.Equal(t, "libs/core: fetch failed", err.Error())
}
