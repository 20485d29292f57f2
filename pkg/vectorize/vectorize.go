package vectorize

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vectorlab/vectorize/pkg/types"
	"go.uber.org/zap"
)

// TransformFunc is the per-item computation. The engine invokes it
// concurrently from multiple workers, so it must be re-entrant safe. args
// carries the call-site extra arguments followed by the worker's
// init-derived arguments, in that order, identically for every item the
// worker processes.
type TransformFunc[T, R any] func(ctx context.Context, item T, args ...any) (R, error)

// InitFunc runs exactly once per worker, before that worker processes any
// item. Whatever it returns is appended after the call-site arguments on
// every transform invocation for that worker's lifetime. rank identifies the
// worker within the run, starting at 0.
type InitFunc func(ctx context.Context, rank int, initArgs ...any) ([]any, error)

// defaultDrainTimeout bounds the teardown wait for workers to exit
const defaultDrainTimeout = 5 * time.Second

// Config defines Vectorizer configuration
type Config struct {
	// Workers is the number of worker goroutines per Process call. Zero
	// runs the whole call sequentially on the calling goroutine;
	// DefaultConfig sets the number of available CPUs. Negative values are
	// rejected by New.
	Workers int

	// Init optionally runs once per worker before any item
	Init InitFunc

	// InitArgs are forwarded verbatim to Init
	InitArgs []any

	// OnItemComplete, when set, is invoked on the orchestrating goroutine
	// after each completed item. It receives no arguments; invocation order
	// follows completion across workers, not input order.
	OnItemComplete func()

	// DrainTimeout bounds the wait for workers to exit during teardown;
	// workers still running when it elapses are abandoned with a warning.
	// Non-positive values fall back to the 5s default.
	DrainTimeout time.Duration

	// Logger for lifecycle events (optional, defaults to a no-op logger)
	Logger *zap.Logger

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:      runtime.NumCPU(),
		DrainTimeout: defaultDrainTimeout,
		Clock:        types.NewRealClock(),
	}
}

// vectorizer lifecycle states
const (
	stateIdle int32 = iota
	stateRunning
	stateClosed
)

// Vectorizer applies a transform to every item of an input source using a
// fixed number of workers, returning results in original input order. A
// Vectorizer is safe for use from multiple goroutines, but only one Process
// call may be active at a time.
type Vectorizer[T, R any] struct {
	transform TransformFunc[T, R]
	config    *Config
	logger    *zap.Logger
	clock     types.Clock

	// lifecycle management
	state     int32 // atomic: idle / running / closed
	closeOnce sync.Once

	// teardown handle of the active run, for Close
	mu     sync.Mutex
	active *run
}

// New creates a Vectorizer for the given transform. A nil config selects
// DefaultConfig. The configuration is copied and immutable afterwards.
func New[T, R any](transform TransformFunc[T, R], config *Config) (*Vectorizer[T, R], error) {
	if transform == nil {
		return nil, types.ErrNilTransform
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("%w: %d", types.ErrNegativeWorkers, config.Workers)
	}

	cfg := *config
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Vectorizer[T, R]{
		transform: transform,
		config:    &cfg,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}, nil
}

// Process applies the transform to every item of src and returns the results
// in input order. extraArgs are forwarded positionally to every transform
// invocation, ahead of any init-derived arguments. The call either fully
// succeeds with one result per input item or fails with no partial output;
// either way all workers it spawned are stopped before it returns.
//
// Mode selection: zero configured workers run sequentially on the calling
// goroutine; otherwise sources implementing types.Indexed are statically
// partitioned and everything else is dynamically distributed.
func (v *Vectorizer[T, R]) Process(ctx context.Context, src types.Source[T], extraArgs ...any) ([]R, error) {
	if src == nil {
		return nil, types.ErrNilSource
	}
	if !atomic.CompareAndSwapInt32(&v.state, stateIdle, stateRunning) {
		if atomic.LoadInt32(&v.state) == stateClosed {
			return nil, types.ErrClosed
		}
		return nil, types.ErrProcessActive
	}
	defer atomic.CompareAndSwapInt32(&v.state, stateRunning, stateIdle)

	// release pull-iterator sources on every exit path
	if stoppable, ok := src.(interface{ Stop() }); ok {
		defer stoppable.Stop()
	}

	logger := v.logger.With(zap.String("run_id", uuid.NewString()))

	indexed, isIndexed := src.(types.Indexed[T])
	var mode string
	switch {
	case v.config.Workers == 0:
		mode = "sequential"
	case isIndexed:
		mode = "static"
	default:
		mode = "dynamic"
	}
	logger.Debug("processing started",
		zap.String("mode", mode),
		zap.Int("workers", v.config.Workers))

	start := v.clock.Now()
	var (
		results []R
		err     error
	)
	switch mode {
	case "sequential":
		results, err = v.runSequential(ctx, src, extraArgs)
	case "static":
		results, err = v.runStatic(ctx, logger, indexed, extraArgs)
	default:
		results, err = v.runDynamic(ctx, logger, src, extraArgs)
	}
	if err != nil {
		logger.Error("processing failed",
			zap.Error(err),
			zap.Duration("duration", v.clock.Since(start)))
		return nil, err
	}

	logger.Debug("processing complete",
		zap.Int("items", len(results)),
		zap.Duration("duration", v.clock.Since(start)))
	return results, nil
}

// ProcessSlice applies the transform to every element of items. Slices are
// indexable, so worker counts above zero use static partitioning.
func (v *Vectorizer[T, R]) ProcessSlice(ctx context.Context, items []T, extraArgs ...any) ([]R, error) {
	return v.Process(ctx, types.FromSlice(items), extraArgs...)
}

// ProcessSeq applies the transform to every value of seq. Sequences have no
// known length, so worker counts above zero use dynamic distribution.
func (v *Vectorizer[T, R]) ProcessSeq(ctx context.Context, seq iter.Seq[T], extraArgs ...any) ([]R, error) {
	return v.Process(ctx, types.FromSeq(seq), extraArgs...)
}

// Close tears down any active run and marks the Vectorizer closed. It is the
// last-resort cleanup for a Vectorizer discarded mid-run; the normal Process
// paths release their workers on their own. Safe to call multiple times.
func (v *Vectorizer[T, R]) Close() error {
	v.closeOnce.Do(func() {
		atomic.StoreInt32(&v.state, stateClosed)

		v.mu.Lock()
		active := v.active
		v.mu.Unlock()
		if active != nil {
			active.shutdown()
		}
		v.logger.Debug("vectorizer closed")
	})
	return nil
}

// Workers returns the configured worker count
func (v *Vectorizer[T, R]) Workers() int {
	return v.config.Workers
}

// runSequential is the zero-worker fallback: everything on the calling
// goroutine, rank 0, no channels involved.
func (v *Vectorizer[T, R]) runSequential(ctx context.Context, src types.Source[T], callArgs []any) ([]R, error) {
	wc, err := newWorkerContext(ctx, 0, v.config.Init, v.config.InitArgs, callArgs)
	if err != nil {
		return nil, err
	}

	var results []R
	if indexed, ok := src.(types.Indexed[T]); ok {
		results = make([]R, 0, indexed.Len())
	}
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, ok := src.Next()
		if !ok {
			return results, nil
		}
		value, err := v.invoke(ctx, wc, item)
		if err != nil {
			return nil, types.NewTransformError(index, 0, err)
		}
		results = append(results, value)
		if v.config.OnItemComplete != nil {
			v.config.OnItemComplete()
		}
	}
}

// setActive publishes the run Close would need to tear down
func (v *Vectorizer[T, R]) setActive(r *run) {
	v.mu.Lock()
	v.active = r
	v.mu.Unlock()
}

func (v *Vectorizer[T, R]) clearActive(r *run) {
	v.mu.Lock()
	if v.active == r {
		v.active = nil
	}
	v.mu.Unlock()
}

// newRun prepares the shared lifecycle state of one concurrent execution
func (v *Vectorizer[T, R]) newRun(workers int, logger *zap.Logger, stop func()) *run {
	slots := make([]*workerSlot, workers)
	for i := range slots {
		slots[i] = newWorkerSlot(i)
	}
	return &run{
		slots:  slots,
		stop:   stop,
		logger: logger,
		clock:  v.clock,
		drain:  v.config.DrainTimeout,
	}
}

// run owns the worker goroutines and teardown of a single Process call
type run struct {
	slots    []*workerSlot
	wg       sync.WaitGroup
	stop     func()
	stopOnce sync.Once
	logger   *zap.Logger
	clock    types.Clock
	drain    time.Duration
}

// shutdown broadcasts the stop signal and waits for the workers to exit,
// bounded by the drain window. Workers still running when the window elapses
// are abandoned: their goroutines finish the current transform invocation on
// their own, but nothing waits for them anymore. Idempotent.
func (r *run) shutdown() {
	r.stopOnce.Do(func() {
		r.stop()

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.logger.Debug("workers drained", zap.Int("workers", len(r.slots)))
		case <-r.clock.After(r.drain):
			r.logger.Warn("abandoning workers after drain window",
				zap.Error(types.ErrDrainTimeout),
				zap.Duration("drain_timeout", r.drain),
				zap.Int("abandoned", r.abandoned()))
		}
	})
}

// abandoned counts workers that have not reached the terminated state
func (r *run) abandoned() int {
	var n int
	for _, slot := range r.slots {
		if slot.State() != workerTerminated {
			n++
		}
	}
	return n
}
