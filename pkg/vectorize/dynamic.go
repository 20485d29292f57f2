package vectorize

import (
	"cmp"
	"context"
	"slices"

	"github.com/vectorlab/vectorize/pkg/types"
	"go.uber.org/zap"
)

// workItem tags an input item with its original index
type workItem[T any] struct {
	index int
	item  T
}

// resultItem carries a computed value, or an error, back with its index.
// Init failures use index -1 since no item was involved.
type resultItem[R any] struct {
	index int
	value R
	err   error
}

// dynamicRun holds the channels of one dynamic-mode execution. Both work and
// results have capacity equal to the worker count: the in-flight window never
// exceeds it, so dispatch and result sends from live runs cannot block. Only
// the orchestrator closes work, once, when the source runs dry; abort is the
// teardown signal and unblocks workers after the orchestrator stops reading.
type dynamicRun[T, R any] struct {
	*run
	callArgs []any
	work     chan workItem[T]
	results  chan resultItem[R]
	abort    chan struct{}
}

// runDynamic executes a single-pass source of unknown length by keeping at
// most one in-flight item per worker and refilling the window as results
// arrive.
func (v *Vectorizer[T, R]) runDynamic(ctx context.Context, logger *zap.Logger, src types.Source[T], callArgs []any) ([]R, error) {
	workers := v.config.Workers

	abort := make(chan struct{})
	dr := &dynamicRun[T, R]{
		run:      v.newRun(workers, logger, func() { close(abort) }),
		callArgs: callArgs,
		work:     make(chan workItem[T], workers),
		results:  make(chan resultItem[R], workers),
		abort:    abort,
	}

	v.setActive(dr.run)
	defer v.clearActive(dr.run)
	defer dr.shutdown()

	for rank := 0; rank < workers; rank++ {
		dr.wg.Add(1)
		go v.dynamicWorker(ctx, dr, rank)
	}

	// prime the window: up to one dispatched item per worker
	var (
		nextIndex int
		inFlight  int
		exhausted bool
		collected []resultItem[R]
	)
	for inFlight < workers {
		item, ok := src.Next()
		if !ok {
			exhausted = true
			// end-of-input sentinel: lets idle workers drain early
			close(dr.work)
			break
		}
		dr.work <- workItem[T]{index: nextIndex, item: item}
		nextIndex++
		inFlight++
	}

	for inFlight > 0 {
		var res resultItem[R]
		select {
		case res = <-dr.results:
		case <-dr.abort:
			return nil, types.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if res.err != nil {
			return nil, res.err
		}
		inFlight--
		collected = append(collected, res)
		if v.config.OnItemComplete != nil {
			v.config.OnItemComplete()
		}
		if exhausted {
			continue
		}
		// refill the slot just freed
		item, ok := src.Next()
		if !ok {
			exhausted = true
			close(dr.work)
			continue
		}
		dr.work <- workItem[T]{index: nextIndex, item: item}
		nextIndex++
		inFlight++
	}

	// completion order rarely matches submission order; restore it
	slices.SortStableFunc(collected, func(a, b resultItem[R]) int {
		return cmp.Compare(a.index, b.index)
	})
	values := make([]R, len(collected))
	for i, res := range collected {
		values[i] = res.value
	}
	return values, nil
}

// dynamicWorker pulls tagged items from the shared work channel until the
// channel is drained or the run aborts, reporting one result per item.
func (v *Vectorizer[T, R]) dynamicWorker(ctx context.Context, r *dynamicRun[T, R], rank int) {
	slot := r.slots[rank]
	defer r.wg.Done()
	defer slot.setState(workerTerminated)

	wc, err := newWorkerContext(ctx, rank, v.config.Init, v.config.InitArgs, r.callArgs)
	if err != nil {
		select {
		case r.results <- resultItem[R]{index: -1, err: err}:
		case <-r.abort:
		}
		return
	}
	slot.setState(workerInitialized)
	r.logger.Debug("worker started", zap.Int("worker_rank", rank))

	for {
		var item workItem[T]
		select {
		case wi, ok := <-r.work:
			if !ok {
				slot.setState(workerDraining)
				return
			}
			item = wi
		case <-r.abort:
			slot.setState(workerDraining)
			return
		}

		slot.setState(workerProcessing)
		value, err := v.invoke(ctx, wc, item.item)
		slot.setState(workerIdle)

		res := resultItem[R]{index: item.index, value: value}
		if err != nil {
			res.err = types.NewTransformError(item.index, rank, err)
		}
		select {
		case r.results <- res:
		case <-r.abort:
			return
		}
	}
}
