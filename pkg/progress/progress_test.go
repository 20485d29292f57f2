package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vectorlab/vectorize/internal/testutils"
	"github.com/vectorlab/vectorize/pkg/vectorize"
)

func TestTracker_Counting(t *testing.T) {
	tr := NewTracker(10, nil)
	assert.Equal(t, int64(0), tr.Count())

	for i := 0; i < 7; i++ {
		tr.Tick()
	}
	assert.Equal(t, int64(7), tr.Count())
}

func TestTracker_RateWithMockClock(t *testing.T) {
	mock := testutils.NewMockClock(t)
	tr := NewTracker(0, &Config{Clock: testutils.NewClockWrapper(mock)})

	mock.Advance(2 * time.Second)
	for i := 0; i < 4; i++ {
		tr.Tick()
	}

	assert.Equal(t, 2*time.Second, tr.Elapsed())
	assert.InDelta(t, 2.0, tr.Rate(), 0.001)
}

func TestTracker_ZeroElapsedRate(t *testing.T) {
	mock := testutils.NewMockClock(t)
	tr := NewTracker(0, &Config{Clock: testutils.NewClockWrapper(mock)})

	tr.Tick()
	// clock has not advanced, rate must not divide by zero
	assert.Zero(t, tr.Rate())
}

func TestTracker_PeriodicLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(25, &Config{LogEvery: 10, Logger: zap.New(core)})

	for i := 0; i < 25; i++ {
		tr.Tick()
	}

	progressLines := logs.FilterMessage("progress")
	require.Equal(t, 2, progressLines.Len())

	first := progressLines.All()[0].ContextMap()
	assert.Equal(t, int64(10), first["completed"])
	assert.Equal(t, int64(25), first["total"])
	assert.InDelta(t, 40.0, first["percent"].(float64), 0.001)
}

func TestTracker_LoggingDisabledByDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(100, &Config{Logger: zap.New(core)})

	for i := 0; i < 100; i++ {
		tr.Tick()
	}
	assert.Zero(t, logs.Len())
}

func TestTracker_Finish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(4, &Config{Logger: zap.New(core)})

	for i := 0; i < 4; i++ {
		tr.Tick()
	}
	tr.Finish()

	summary := logs.FilterMessage("processing finished")
	require.Equal(t, 1, summary.Len())

	fields := summary.All()[0].ContextMap()
	assert.Equal(t, int64(4), fields["completed"])
	assert.InDelta(t, 100.0, fields["percent"].(float64), 0.001)
}

func TestTracker_UnknownTotalOmitsPercent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(0, &Config{LogEvery: 1, Logger: zap.New(core)})

	tr.Tick()

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "total")
	assert.NotContains(t, fields, "percent")
}

// TestTracker_AsCompletionCallback wires a Tracker into a parallel run the
// way callers are expected to
func TestTracker_AsCompletionCallback(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewTracker(40, &Config{LogEvery: 20, Logger: zap.New(core)})

	v, err := vectorize.New(
		vectorize.Lift(func(n int) int { return n * n }),
		&vectorize.Config{Workers: 4, OnItemComplete: tr.Tick},
	)
	require.NoError(t, err)

	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}
	out, err := v.ProcessSlice(context.Background(), items)
	require.NoError(t, err)
	tr.Finish()

	assert.Len(t, out, 40)
	assert.Equal(t, int64(40), tr.Count())
	assert.Equal(t, 2, logs.FilterMessage("progress").Len())
	assert.Equal(t, 1, logs.FilterMessage("processing finished").Len())
}
