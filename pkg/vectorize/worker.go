package vectorize

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/vectorlab/vectorize/pkg/types"
)

// workerState tracks where a worker goroutine is in its lifecycle
type workerState int32

const (
	// workerSpawned means the goroutine exists but init has not run yet
	workerSpawned workerState = iota
	// workerInitialized means init completed and no item has started
	workerInitialized
	// workerProcessing means a transform invocation is running
	workerProcessing
	// workerIdle means the worker is between items
	workerIdle
	// workerDraining means the worker observed the stop signal
	workerDraining
	// workerTerminated means the goroutine has exited
	workerTerminated
)

// String returns the string representation of workerState
func (s workerState) String() string {
	switch s {
	case workerSpawned:
		return "spawned"
	case workerInitialized:
		return "initialized"
	case workerProcessing:
		return "processing"
	case workerIdle:
		return "idle"
	case workerDraining:
		return "draining"
	case workerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// workerSlot is the orchestrator-visible record of one worker goroutine.
// The slot outlives the goroutine, so teardown can count workers that have
// not reached workerTerminated when the drain window elapses.
type workerSlot struct {
	rank  int
	state int32 // atomic workerState
}

func newWorkerSlot(rank int) *workerSlot {
	return &workerSlot{rank: rank, state: int32(workerSpawned)}
}

func (w *workerSlot) setState(s workerState) {
	atomic.StoreInt32(&w.state, int32(s))
}

// State returns the current lifecycle state
func (w *workerSlot) State() workerState {
	return workerState(atomic.LoadInt32(&w.state))
}

// workerContext holds the per-worker invocation state: the worker's rank and
// the argument slice passed to every transform call. The slice is built once,
// at worker start, as callArgs followed by whatever Init returned, and never
// changes for the worker's lifetime.
type workerContext struct {
	rank int
	args []any
}

// newWorkerContext runs the optional init function for the given rank and
// merges its derived arguments after the call-site arguments. An init failure
// is fatal to the whole run and is reported as an InitError.
func newWorkerContext(ctx context.Context, rank int, init InitFunc, initArgs, callArgs []any) (*workerContext, error) {
	wc := &workerContext{rank: rank, args: callArgs}
	if init == nil {
		return wc, nil
	}

	derived, err := init(ctx, rank, initArgs...)
	if err != nil {
		return nil, types.NewInitError(rank, err)
	}
	if len(derived) > 0 {
		merged := make([]any, 0, len(callArgs)+len(derived))
		merged = append(merged, callArgs...)
		merged = append(merged, derived...)
		wc.args = merged
	}
	return wc, nil
}

// invoke executes the transform on a single item with panic recovery support
func (v *Vectorizer[T, R]) invoke(ctx context.Context, wc *workerContext, item T) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			// record panic information
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			switch p := r.(type) {
			case error:
				err = fmt.Errorf("panic: %w\nstack trace:\n%s", p, buf[:n])
			default:
				err = fmt.Errorf("panic: %v\nstack trace:\n%s", p, buf[:n])
			}
		}
	}()

	return v.transform(ctx, item, wc.args...)
}
