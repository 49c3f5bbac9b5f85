package stream

import (
	"cmp"
	"iter"

	"github.com/cbegin/plink-go/internal/ticktime"
)

// Merger merges two ordered sequences. It takes from the right side only
// when the right head is strictly less than the left head, so equal elements
// come out left first.
type Merger[T any] struct {
	left, right *Lookahead[T]
	less        func(a, b T) bool
}

func NewMerger[T any](left, right iter.Seq[T], less func(a, b T) bool) *Merger[T] {
	return &Merger[T]{left: NewLookahead(left), right: NewLookahead(right), less: less}
}

func (m *Merger[T]) side() *Lookahead[T] {
	l, lok := m.left.Peek()
	r, rok := m.right.Peek()
	switch {
	case !lok && !rok:
		return nil
	case !rok:
		return m.left
	case !lok:
		return m.right
	case m.less(r, l):
		return m.right
	}
	return m.left
}

func (m *Merger[T]) Peek() (T, bool) {
	if s := m.side(); s != nil {
		return s.Peek()
	}
	var zero T
	return zero, false
}

func (m *Merger[T]) Next() (T, bool) {
	if s := m.side(); s != nil {
		return s.Next()
	}
	var zero T
	return zero, false
}

func (m *Merger[T]) Stop() {
	m.left.Stop()
	m.right.Stop()
}

// All yields the merged remainder and releases both inputs when done.
func (m *Merger[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer m.Stop()
		for {
			v, ok := m.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Merge lazily merges two ordered sequences under less.
func Merge[T any](left, right iter.Seq[T], less func(a, b T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range NewMerger(left, right, less).All() {
			if !yield(v) {
				return
			}
		}
	}
}

// MergeOrdered merges by natural order.
func MergeOrdered[T cmp.Ordered](left, right iter.Seq[T]) iter.Seq[T] {
	return Merge(left, right, cmp.Less[T])
}

// MergeTimed merges time-bearing values by their tick.
func MergeTimed[V any](left, right iter.Seq[ticktime.Timed[V]]) iter.Seq[ticktime.Timed[V]] {
	return Merge(left, right, ticktime.Less[V])
}
