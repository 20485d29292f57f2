// Package types provides the shared contracts of the vectorize module:
// input sources, error types and the clock abstraction used for time mocking.
package types

import "time"

// Clock abstracts the time operations the engine depends on, so tests can
// substitute a mock and drive timeouts deterministically.
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
	// After returns a channel that delivers the current time after the duration
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using real time operations
type RealClock struct{}

// NewRealClock creates a new real clock
func NewRealClock() Clock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
