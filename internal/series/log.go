// Package series provides append-only sequences with a single writer and
// lock-free readers. The writer publishes the slice header atomically after
// every append; readers load it and see an immutable prefix.
package series

import "sync/atomic"

// Log is an append-only sequence of T. Published elements are never mutated.
type Log[T any] struct {
	items []T // owned by the writer
	pub   atomic.Pointer[[]T]
}

// Append adds v and publishes the new prefix. Writer-only.
func (l *Log[T]) Append(v T) {
	l.items = append(l.items, v)
	view := l.items[:len(l.items):len(l.items)]
	l.pub.Store(&view)
}

// View returns the published prefix. The returned slice has cap == len, so a
// reader appending to it can never clobber the writer's backing array.
func (l *Log[T]) View() []T {
	p := l.pub.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Len returns the published length.
func (l *Log[T]) Len() int {
	return len(l.View())
}

// Last returns the newest published element.
func (l *Log[T]) Last() (T, bool) {
	v := l.View()
	if len(v) == 0 {
		var zero T
		return zero, false
	}
	return v[len(v)-1], true
}

// Tail returns up to n newest published elements, oldest first.
func (l *Log[T]) Tail(n int) []T {
	v := l.View()
	if n <= 0 {
		return nil
	}
	if n < len(v) {
		return v[len(v)-n:]
	}
	return v
}
