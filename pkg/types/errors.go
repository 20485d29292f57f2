package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrNilTransform indicates the transform function was nil at construction
	ErrNilTransform = errors.New("transform function cannot be nil")

	// ErrNilSource indicates a nil input source was passed to Process
	ErrNilSource = errors.New("input source cannot be nil")

	// ErrNegativeWorkers indicates an invalid negative worker count
	ErrNegativeWorkers = errors.New("worker count cannot be negative")

	// ErrProcessActive indicates Process was called while a previous run
	// has not finished its teardown
	ErrProcessActive = errors.New("process already active")

	// ErrClosed indicates the vectorizer has been closed
	ErrClosed = errors.New("vectorizer is closed")

	// ErrDrainTimeout indicates workers did not exit within the drain window
	ErrDrainTimeout = errors.New("workers did not exit within drain window")

	// ErrTransformFailed is the class sentinel matched by every TransformError
	ErrTransformFailed = errors.New("transform failed")

	// ErrInitFailed is the class sentinel matched by every InitError
	ErrInitFailed = errors.New("worker init failed")
)

// TransformError reports a transform failure on a single item. The run it
// belonged to fails as a whole; no partial results are returned.
type TransformError struct {
	// Index is the original input index of the failing item
	Index int

	// Rank is the worker that executed the item
	Rank int

	// Err is the underlying error (or recovered panic)
	Err error
}

// Error implements the error interface
func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed on item %d (worker %d): %v", e.Index, e.Rank, e.Err)
}

// Unwrap returns the underlying error
func (e *TransformError) Unwrap() error {
	return e.Err
}

// Is matches the ErrTransformFailed class sentinel and the wrapped cause
func (e *TransformError) Is(target error) bool {
	if target == ErrTransformFailed {
		return true
	}
	return errors.Is(e.Err, target)
}

// NewTransformError creates a new TransformError
func NewTransformError(index, rank int, err error) *TransformError {
	return &TransformError{Index: index, Rank: rank, Err: err}
}

// InitError reports a worker init failure. It is fatal to the whole run:
// continuing with fewer workers would corrupt the shard assignment in static
// mode and the in-flight accounting in dynamic mode.
type InitError struct {
	// Rank is the worker whose init failed
	Rank int

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *InitError) Error() string {
	return fmt.Sprintf("worker %d init failed: %v", e.Rank, e.Err)
}

// Unwrap returns the underlying error
func (e *InitError) Unwrap() error {
	return e.Err
}

// Is matches the ErrInitFailed class sentinel and the wrapped cause
func (e *InitError) Is(target error) bool {
	if target == ErrInitFailed {
		return true
	}
	return errors.Is(e.Err, target)
}

// NewInitError creates a new InitError
func NewInitError(rank int, err error) *InitError {
	return &InitError{Rank: rank, Err: err}
}
