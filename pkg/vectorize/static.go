package vectorize

import (
	"context"

	"github.com/vectorlab/vectorize/pkg/types"
	"go.uber.org/zap"
)

// shard is a contiguous half-open index range [lo, hi) assigned to one worker
type shard struct {
	lo, hi int
}

func (s shard) size() int {
	return s.hi - s.lo
}

// splitIndexRange divides [0, n) into parts contiguous near-equal shards.
// The first n%parts shards take one extra item, so shard sizes never differ
// by more than one. Shards are ordered by rank; concatenating bundles in
// rank order therefore restores the global index order with no per-item sort.
// When n < parts, the trailing shards are empty.
func splitIndexRange(n, parts int) []shard {
	shards := make([]shard, parts)
	base := n / parts
	extra := n % parts
	lo := 0
	for i := range shards {
		size := base
		if i < extra {
			size++
		}
		shards[i] = shard{lo: lo, hi: lo + size}
		lo += size
	}
	return shards
}

// tick is a per-item completion signal carrying no payload. An error tick
// aborts the run.
type tick struct {
	err error
}

// bundle is a worker's entire shard output, reported once per worker
type bundle[R any] struct {
	values []R
	err    error
}

// staticRun holds the channels of one static-mode execution. Each worker
// exchanges exactly two messages with the orchestrator: its result bundle,
// and the shared release signal it parks on afterwards. Ticks exist only
// when a completion callback is configured.
type staticRun[T, R any] struct {
	*run
	src      types.Indexed[T]
	shards   []shard
	callArgs []any
	ticks    chan tick
	bundles  []chan bundle[R]
	release  chan struct{}
}

// fail reports a fatal worker error on every channel the orchestrator may be
// blocked on: the rank's bundle slot, and the tick stream when active.
func (r *staticRun[T, R]) fail(rank int, err error) {
	if r.ticks != nil {
		select {
		case r.ticks <- tick{err: err}:
		case <-r.release:
			return
		}
	}
	select {
	case r.bundles[rank] <- bundle[R]{err: err}:
	case <-r.release:
	}
}

// runStatic executes a known-length, indexable input by giving each worker
// one contiguous shard of it.
func (v *Vectorizer[T, R]) runStatic(ctx context.Context, logger *zap.Logger, src types.Indexed[T], callArgs []any) ([]R, error) {
	n := src.Len()
	workers := v.config.Workers

	release := make(chan struct{})
	sr := &staticRun[T, R]{
		run:      v.newRun(workers, logger, func() { close(release) }),
		src:      src,
		shards:   splitIndexRange(n, workers),
		callArgs: callArgs,
		bundles:  make([]chan bundle[R], workers),
		release:  release,
	}
	if v.config.OnItemComplete != nil {
		// capacity n: at most one tick per item is ever sent, so workers
		// never stall on tick delivery behind a slow callback
		sr.ticks = make(chan tick, n)
	}

	v.setActive(sr.run)
	defer v.clearActive(sr.run)
	defer sr.shutdown()

	for rank := 0; rank < workers; rank++ {
		sr.bundles[rank] = make(chan bundle[R], 1)
		sr.wg.Add(1)
		go v.staticWorker(ctx, sr, rank)
	}

	// consume one tick per item, invoking the callback in arrival order
	// across workers; the interleaving between shards is unspecified
	if sr.ticks != nil {
		for seen := 0; seen < n; seen++ {
			select {
			case t := <-sr.ticks:
				if t.err != nil {
					return nil, t.err
				}
				v.config.OnItemComplete()
			case <-sr.release:
				return nil, types.ErrClosed
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// one blocking bundle read per worker, in rank order; all workers are
	// still parked on release, so no bundle can be lost
	results := make([]R, 0, n)
	for rank := 0; rank < workers; rank++ {
		select {
		case b := <-sr.bundles[rank]:
			if b.err != nil {
				return nil, b.err
			}
			results = append(results, b.values...)
		case <-sr.release:
			return nil, types.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// staticWorker runs one shard to completion, pushes the result bundle, then
// parks until released so the bundle is retrieved before the goroutine exits.
func (v *Vectorizer[T, R]) staticWorker(ctx context.Context, r *staticRun[T, R], rank int) {
	slot := r.slots[rank]
	defer r.wg.Done()
	defer slot.setState(workerTerminated)

	wc, err := newWorkerContext(ctx, rank, v.config.Init, v.config.InitArgs, r.callArgs)
	if err != nil {
		r.fail(rank, err)
		return
	}
	slot.setState(workerInitialized)

	sh := r.shards[rank]
	r.logger.Debug("worker started",
		zap.Int("worker_rank", rank),
		zap.Int("shard_size", sh.size()))

	values := make([]R, 0, sh.size())
	for i := sh.lo; i < sh.hi; i++ {
		select {
		case <-r.release:
			return
		case <-ctx.Done():
			return
		default:
		}

		slot.setState(workerProcessing)
		value, err := v.invoke(ctx, wc, r.src.At(i))
		slot.setState(workerIdle)
		if err != nil {
			r.fail(rank, types.NewTransformError(i, rank, err))
			return
		}
		values = append(values, value)

		if r.ticks != nil {
			select {
			case r.ticks <- tick{}:
			case <-r.release:
				return
			}
		}
	}

	slot.setState(workerDraining)
	// capacity 1 and the only send on this rank's channel: never blocks
	r.bundles[rank] <- bundle[R]{values: values}
	select {
	case <-r.release:
	case <-ctx.Done():
	}
}
