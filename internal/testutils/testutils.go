// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestContext bundles a test with its timeout context and cleanup stack
type TestContext struct {
	t       *testing.T
	timeout time.Duration
	cleanup []func()
	mu      sync.Mutex
}

// NewTestContext creates a new test context; a non-positive timeout selects 5s
func NewTestContext(t *testing.T, timeout time.Duration) *TestContext {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TestContext{
		t:       t,
		timeout: timeout,
		cleanup: make([]func(), 0),
	}
}

// T returns testing.T instance
func (tc *TestContext) T() *testing.T {
	return tc.t
}

// Context returns a context bounded by the test timeout
func (tc *TestContext) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), tc.timeout)
	tc.AddCleanup(cancel)
	return ctx
}

// AddCleanup adds cleanup function
func (tc *TestContext) AddCleanup(fn func()) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.cleanup = append(tc.cleanup, fn)
}

// Cleanup executes cleanup functions in reverse order
func (tc *TestContext) Cleanup() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := len(tc.cleanup) - 1; i >= 0; i-- {
		tc.cleanup[i]()
	}
	tc.cleanup = nil
}
