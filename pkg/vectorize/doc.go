/*
Package vectorize provides a parallel-map execution engine: it applies a
transform function to every item of a collection or stream using a fixed
number of worker goroutines and returns the results in original input order.

# Overview

The engine solves two scheduling problems behind one call surface:
- Static partitioning for known-length, indexable inputs: each worker gets
  one contiguous shard and exchanges exactly two messages with the
  orchestrator, minimizing per-item overhead
- Dynamic distribution for streams of unknown length: a bounded in-flight
  window of one item per worker balances load adaptively and keeps memory
  at O(workers) regardless of stream length
- A sequential fallback (zero workers) runs everything on the calling
  goroutine for debugging and low-overhead cases

In every mode the output order matches the input order and all workers are
stopped before Process returns, on success and on failure alike.

# Core Components

## Vectorizer

The orchestrator. Selects the execution mode per call, spawns and owns the
workers, collects and reorders results, invokes the completion callback, and
guarantees teardown. Only one Process call may be active at a time; a second
call fails fast with ErrProcessActive.

## Sources

Inputs arrive through the types.Source pull iterator. Sources that also
implement types.Indexed (known length, random access) are eligible for
static partitioning. Adapters exist for slices, standard iterator sequences,
channels and plain next functions.

## Worker init protocol

An optional Init function runs exactly once per worker, before any item.
Its returned values are appended to every transform invocation on that
worker, after the call-site extra arguments:

	transform(ctx, item, callSiteArgs..., initDerivedArgs...)

This supports expensive per-worker setup (a connection, a model handle)
without paying for it per item.

# Callback Semantics

OnItemComplete, when configured, runs on the orchestrating goroutine after
each completed item, exactly once per item. Its invocation order follows
completion across workers, not input order, in both concurrent modes; do
not infer item identity from callback order.

# Error Handling

A transform error or panic on any item fails the whole call: no partial
results are returned and the remaining workers are released. Worker init
failures are equally fatal. Teardown waits for workers up to the configured
DrainTimeout and then abandons stragglers with a warning; a failed call
leaves the Vectorizer reusable.

Errors carry their origin: TransformError wraps the failing item's index
and worker rank, InitError the worker rank. Both match their class
sentinels (ErrTransformFailed, ErrInitFailed) through errors.Is.

# Usage Examples

Static partitioning over a slice:

	v, err := vectorize.New(vectorize.Lift(func(n int) int { return n * n }),
		&vectorize.Config{Workers: 3})
	if err != nil {
		log.Fatal(err)
	}
	defer v.Close()

	squares, err := v.ProcessSlice(ctx, []int{1, 2, 3, 4, 5})

Dynamic distribution over a stream:

	results, err := v.ProcessSeq(ctx, func(yield func(int) bool) {
		for n := range 1000 {
			if !yield(n) {
				return
			}
		}
	})

Per-worker init with extra arguments:

	cfg := &vectorize.Config{
		Workers: 4,
		Init: func(ctx context.Context, rank int, initArgs ...any) ([]any, error) {
			return []any{newExpensiveHandle(rank)}, nil
		},
	}
	v, err := vectorize.New(transform, cfg)
	// transform receives (ctx, item, callArgs..., handle)

Progress reporting:

	tracker := progress.NewTracker(len(items), nil)
	cfg := &vectorize.Config{Workers: 8, OnItemComplete: tracker.Tick}

# Concurrency Safety

The transform must be re-entrant safe; the engine invokes it from multiple
goroutines concurrently. Workers share no mutable state and communicate
with the orchestrator exclusively over channels. All lifecycle transitions
use atomic operations and the implementation passes the race detector.
*/
package vectorize
