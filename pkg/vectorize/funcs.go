package vectorize

import "context"

// Lift wraps a plain mapping as a TransformFunc - simplest transformation.
// The context and extra arguments are ignored.
func Lift[T, R any](fn func(T) R) TransformFunc[T, R] {
	return func(_ context.Context, item T, _ ...any) (R, error) {
		return fn(item), nil
	}
}

// LiftErr wraps a potentially failing mapping as a TransformFunc
func LiftErr[T, R any](fn func(T) (R, error)) TransformFunc[T, R] {
	return func(_ context.Context, item T, _ ...any) (R, error) {
		return fn(item)
	}
}

// LiftCtx wraps a context-aware mapping as a TransformFunc, for transforms
// that honor cancellation but take no extra arguments
func LiftCtx[T, R any](fn func(context.Context, T) (R, error)) TransformFunc[T, R] {
	return func(ctx context.Context, item T, _ ...any) (R, error) {
		return fn(ctx, item)
	}
}
