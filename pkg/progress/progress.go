// Package progress provides completion tracking for vectorize runs. A
// Tracker counts completed items and periodically reports throughput; its
// Tick method is a valid OnItemComplete callback.
package progress

import (
	"sync/atomic"
	"time"

	"github.com/vectorlab/vectorize/pkg/types"
	"go.uber.org/zap"
)

// Config defines Tracker configuration
type Config struct {
	// LogEvery emits a progress line every LogEvery completions; zero
	// disables periodic logging (Finish still logs a summary)
	LogEvery int

	// Logger receives progress output (optional, defaults to no-op)
	Logger *zap.Logger

	// Clock for elapsed-time accounting (optional, defaults to real clock)
	Clock types.Clock
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Clock: types.NewRealClock(),
	}
}

// Tracker counts completed items against an optional expected total. It is
// cheap and side-effect-only, as the completion callback contract requires:
// one atomic increment per tick plus an occasional log line.
type Tracker struct {
	total    int64
	logEvery int64
	count    int64 // atomic
	start    time.Time
	logger   *zap.Logger
	clock    types.Clock
}

// NewTracker creates a Tracker expecting total completions. Pass a total of
// zero or less when the input length is unknown; percentages are then
// omitted from the output. A nil config selects DefaultConfig.
func NewTracker(total int, config *Config) *Tracker {
	if config == nil {
		config = DefaultConfig()
	}
	clock := config.Clock
	if clock == nil {
		clock = types.NewRealClock()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		total:    int64(total),
		logEvery: int64(config.LogEvery),
		start:    clock.Now(),
		logger:   logger,
		clock:    clock,
	}
}

// Tick records one completed item. Safe for concurrent use, although the
// engine invokes completion callbacks from a single goroutine.
func (t *Tracker) Tick() {
	n := atomic.AddInt64(&t.count, 1)
	if t.logEvery > 0 && n%t.logEvery == 0 {
		t.log("progress", n)
	}
}

// Count returns the number of completions recorded so far
func (t *Tracker) Count() int64 {
	return atomic.LoadInt64(&t.count)
}

// Elapsed returns the time since the Tracker was created
func (t *Tracker) Elapsed() time.Duration {
	return t.clock.Since(t.start)
}

// Rate returns completions per second since the Tracker was created
func (t *Tracker) Rate() float64 {
	elapsed := t.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.Count()) / elapsed
}

// Finish logs a completion summary
func (t *Tracker) Finish() {
	t.log("processing finished", t.Count())
}

func (t *Tracker) log(msg string, n int64) {
	fields := []zap.Field{
		zap.Int64("completed", n),
		zap.Duration("elapsed", t.Elapsed()),
		zap.Float64("items_per_second", t.Rate()),
	}
	if t.total > 0 {
		fields = append(fields,
			zap.Int64("total", t.total),
			zap.Float64("percent", 100*float64(n)/float64(t.total)))
	}
	t.logger.Info(msg, fields...)
}
