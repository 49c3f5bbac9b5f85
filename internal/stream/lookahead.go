// Package stream provides single-pass sequence helpers used to walk and merge
// time-ordered data: one-element lookahead and ordered two-way merging.
package stream

import "iter"

// Lookahead exposes the next element of a sequence without consuming it.
// A Lookahead is single-pass; restart it by building a new one.
type Lookahead[T any] struct {
	pull   func() (T, bool)
	stop   func()
	head   T
	ok     bool
	primed bool
}

// NewLookahead pulls from seq lazily. Call Stop if the sequence is abandoned
// before it is exhausted.
func NewLookahead[T any](seq iter.Seq[T]) *Lookahead[T] {
	pull, stop := iter.Pull(seq)
	return &Lookahead[T]{pull: pull, stop: stop}
}

// FromSlice is NewLookahead over the elements of s.
func FromSlice[T any](s []T) *Lookahead[T] {
	return NewLookahead(func(yield func(T) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	})
}

func (l *Lookahead[T]) fill() {
	if l.primed {
		return
	}
	l.head, l.ok = l.pull()
	l.primed = true
}

// Peek returns the next element without consuming it.
func (l *Lookahead[T]) Peek() (T, bool) {
	l.fill()
	return l.head, l.ok
}

// Next consumes and returns the next element.
func (l *Lookahead[T]) Next() (T, bool) {
	l.fill()
	v, ok := l.head, l.ok
	if ok {
		l.primed = false
	}
	var zero T
	l.head = zero
	return v, ok
}

// Stop releases the underlying sequence.
func (l *Lookahead[T]) Stop() {
	l.stop()
	l.primed, l.ok = true, false
}

// All yields the remaining elements.
func (l *Lookahead[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := l.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}
