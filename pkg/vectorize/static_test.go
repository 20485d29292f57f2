package vectorize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorlab/vectorize/pkg/types"
)

func TestSplitIndexRange(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		parts    int
		expected []shard
	}{
		{
			name:     "Even Split",
			n:        9,
			parts:    3,
			expected: []shard{{0, 3}, {3, 6}, {6, 9}},
		},
		{
			name:     "Remainder Goes To Leading Shards",
			n:        10,
			parts:    3,
			expected: []shard{{0, 4}, {4, 7}, {7, 10}},
		},
		{
			name:     "Single Part",
			n:        5,
			parts:    1,
			expected: []shard{{0, 5}},
		},
		{
			name:     "One Item Per Part",
			n:        3,
			parts:    3,
			expected: []shard{{0, 1}, {1, 2}, {2, 3}},
		},
		{
			name:     "Fewer Items Than Parts",
			n:        2,
			parts:    5,
			expected: []shard{{0, 1}, {1, 2}, {2, 2}, {2, 2}, {2, 2}},
		},
		{
			name:     "Zero Items",
			n:        0,
			parts:    3,
			expected: []shard{{0, 0}, {0, 0}, {0, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIndexRange(tt.n, tt.parts)
			require.Equal(t, tt.expected, got)

			// shards must tile [0, n) contiguously in rank order
			lo := 0
			for _, s := range got {
				assert.Equal(t, lo, s.lo)
				assert.GreaterOrEqual(t, s.size(), 0)
				lo = s.hi
			}
			assert.Equal(t, tt.n, lo)
		})
	}
}

func TestStatic_OrderAcrossWorkerCounts(t *testing.T) {
	items := intRange(0, 100)
	expected := make([]int, len(items))
	for i, n := range items {
		expected[i] = n * n
	}

	for _, workers := range []int{1, 2, 3, 7, 16} {
		t.Run(fmt.Sprintf("Workers=%d", workers), func(t *testing.T) {
			v, err := New(square, &Config{Workers: workers})
			require.NoError(t, err)

			out, err := v.ProcessSlice(context.Background(), items)
			require.NoError(t, err)
			assert.Equal(t, expected, out)
		})
	}
}

func TestStatic_Scenario(t *testing.T) {
	// items 1..10, squares, three workers, callback ticks once per item
	ticks := 0
	v, err := New(square, &Config{Workers: 3, OnItemComplete: func() { ticks++ }})
	require.NoError(t, err)

	out, err := v.ProcessSlice(context.Background(), intRange(1, 10))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64, 81, 100}, out)
	assert.Equal(t, 10, ticks)
}

func TestStatic_CallbackCount(t *testing.T) {
	for _, workers := range []int{1, 4, 9} {
		t.Run(fmt.Sprintf("Workers=%d", workers), func(t *testing.T) {
			calls := 0
			v, err := New(square, &Config{Workers: workers, OnItemComplete: func() { calls++ }})
			require.NoError(t, err)

			_, err = v.ProcessSlice(context.Background(), intRange(0, 53))
			require.NoError(t, err)
			assert.Equal(t, 53, calls)
		})
	}
}

func TestStatic_InitOncePerWorker(t *testing.T) {
	const workers = 4

	var initCalls int64
	var ranks sync.Map
	cfg := &Config{
		Workers: workers,
		Init: func(_ context.Context, rank int, _ ...any) ([]any, error) {
			atomic.AddInt64(&initCalls, 1)
			ranks.Store(rank, true)
			return nil, nil
		},
	}
	v, err := New(square, cfg)
	require.NoError(t, err)

	_, err = v.ProcessSlice(context.Background(), intRange(0, 200))
	require.NoError(t, err)
	assert.Equal(t, int64(workers), atomic.LoadInt64(&initCalls))

	for rank := 0; rank < workers; rank++ {
		_, seen := ranks.Load(rank)
		assert.True(t, seen, "rank %d never initialized", rank)
	}
}

func TestStatic_MoreWorkersThanItems(t *testing.T) {
	// excess workers get empty shards and report empty bundles
	calls := 0
	v, err := New(square, &Config{Workers: 8, OnItemComplete: func() { calls++ }})
	require.NoError(t, err)

	out, err := v.ProcessSlice(context.Background(), []int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 9}, out)
	assert.Equal(t, 2, calls)
}

func TestStatic_EmptyInput(t *testing.T) {
	v, err := New(square, &Config{Workers: 3})
	require.NoError(t, err)

	out, err := v.ProcessSlice(context.Background(), []int{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStatic_TransformError(t *testing.T) {
	failOn := func(bad int) TransformFunc[int, int] {
		return func(_ context.Context, n int, _ ...any) (int, error) {
			if n == bad {
				return 0, errors.New("corrupted item")
			}
			return n * n, nil
		}
	}

	t.Run("Without Callback", func(t *testing.T) {
		v, err := New(failOn(5), &Config{Workers: 3})
		require.NoError(t, err)

		out, err := v.ProcessSlice(context.Background(), intRange(0, 10))
		require.Error(t, err)
		assert.Nil(t, out, "no partial results on failure")
		require.ErrorIs(t, err, types.ErrTransformFailed)

		var te *types.TransformError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 5, te.Index)
	})

	t.Run("With Callback", func(t *testing.T) {
		// the error travels through the tick stream when ticks are active
		calls := 0
		v, err := New(failOn(5), &Config{Workers: 3, OnItemComplete: func() { calls++ }})
		require.NoError(t, err)

		out, err := v.ProcessSlice(context.Background(), intRange(0, 10))
		require.Error(t, err)
		assert.Nil(t, out)
		require.ErrorIs(t, err, types.ErrTransformFailed)
		assert.Less(t, calls, 10, "callback must not fire for every item on a failed run")
	})

	t.Run("Vectorizer Reusable After Failure", func(t *testing.T) {
		v, err := New(failOn(5), &Config{Workers: 3})
		require.NoError(t, err)

		_, err = v.ProcessSlice(context.Background(), intRange(0, 10))
		require.Error(t, err)

		out, err := v.ProcessSlice(context.Background(), intRange(6, 10))
		require.NoError(t, err)
		assert.Equal(t, []int{36, 49, 64, 81, 100, 121, 144, 169, 196, 225}, out)
	})
}

func TestStatic_InitError(t *testing.T) {
	cfg := &Config{
		Workers: 3,
		Init: func(_ context.Context, rank int, _ ...any) ([]any, error) {
			if rank == 1 {
				return nil, errors.New("resource unavailable")
			}
			return nil, nil
		},
	}
	v, err := New(square, cfg)
	require.NoError(t, err)

	out, err := v.ProcessSlice(context.Background(), intRange(0, 30))
	require.Error(t, err)
	assert.Nil(t, out)
	require.ErrorIs(t, err, types.ErrInitFailed)

	var ie *types.InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Rank)
}

func TestStatic_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var processed int64
	v, err := New(func(ctx context.Context, n int, _ ...any) (int, error) {
		if atomic.AddInt64(&processed, 1) == 5 {
			cancel()
		}
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
		}
		return n, nil
	}, &Config{Workers: 3, DrainTimeout: time.Second})
	require.NoError(t, err)

	out, err := v.ProcessSlice(ctx, intRange(0, 300))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Less(t, atomic.LoadInt64(&processed), int64(300))
}

func TestStatic_PanicRecovery(t *testing.T) {
	v, err := New(func(_ context.Context, n int, _ ...any) (int, error) {
		if n == 7 {
			panic("kaboom")
		}
		return n * n, nil
	}, &Config{Workers: 2})
	require.NoError(t, err)

	out, err := v.ProcessSlice(context.Background(), intRange(0, 12))
	require.Error(t, err)
	assert.Nil(t, out)
	require.ErrorIs(t, err, types.ErrTransformFailed)
	assert.Contains(t, err.Error(), "panic: kaboom")

	var te *types.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 7, te.Index)
}
