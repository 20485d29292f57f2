package types

import "iter"

// Source is a single-pass pull iterator over input items. Next returns the
// next item and true, or the zero value and false once the source is
// exhausted. Next is only ever called from the orchestrating goroutine, so
// implementations do not need to be safe for concurrent use.
type Source[T any] interface {
	Next() (T, bool)
}

// Indexed is a Source with a known length and random access. Inputs that
// implement it are eligible for static partitioning: At is called
// concurrently by workers, each on a disjoint index range, so it must be
// safe for concurrent reads of distinct indices (a slice is).
type Indexed[T any] interface {
	Source[T]
	Len() int
	At(i int) T
}

// sliceSource adapts a slice. It satisfies Indexed.
type sliceSource[T any] struct {
	items []T
	pos   int
}

// FromSlice creates an Indexed source over items. The slice is not copied;
// the caller must not mutate it while a Process call is running.
func FromSlice[T any](items []T) Indexed[T] {
	return &sliceSource[T]{items: items}
}

func (s *sliceSource[T]) Next() (T, bool) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false
	}
	item := s.items[s.pos]
	s.pos++
	return item, true
}

func (s *sliceSource[T]) Len() int {
	return len(s.items)
}

func (s *sliceSource[T]) At(i int) T {
	return s.items[i]
}

// seqSource adapts an iter.Seq via a pull iterator.
type seqSource[T any] struct {
	next func() (T, bool)
	stop func()
}

// FromSeq creates a Source over a standard iterator sequence. The returned
// source holds a pull iterator; it exposes Stop so the engine can release it
// when a run ends before the sequence is exhausted.
func FromSeq[T any](seq iter.Seq[T]) Source[T] {
	next, stop := iter.Pull(seq)
	return &seqSource[T]{next: next, stop: stop}
}

func (s *seqSource[T]) Next() (T, bool) {
	return s.next()
}

// Stop releases the underlying pull iterator. Safe to call more than once.
func (s *seqSource[T]) Stop() {
	s.stop()
}

// chanSource adapts a receive channel. The source is exhausted when the
// channel is closed.
type chanSource[T any] struct {
	ch <-chan T
}

// FromChan creates a Source that receives items from ch until it is closed.
func FromChan[T any](ch <-chan T) Source[T] {
	return &chanSource[T]{ch: ch}
}

func (s *chanSource[T]) Next() (T, bool) {
	item, ok := <-s.ch
	return item, ok
}

// funcSource adapts a plain next function.
type funcSource[T any] struct {
	next func() (T, bool)
}

// FromFunc creates a Source from a next function with Source semantics:
// it must keep returning false once exhausted.
func FromFunc[T any](next func() (T, bool)) Source[T] {
	return &funcSource[T]{next: next}
}

func (s *funcSource[T]) Next() (T, bool) {
	return s.next()
}
