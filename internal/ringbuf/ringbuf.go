// Package ringbuf provides a fixed-capacity ring buffer with a single writer.
// Push rejects when full (queue use); Put overwrites the oldest entry
// (bounded history use). Head and tail are atomics so a concurrent reader
// observes a consistent length.
package ringbuf

import "sync/atomic"

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a ring buffer of T holding at most Cap() values.
type Ring[T any] struct {
	buf   []T
	mask  uint64
	limit uint64

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // advanced by consumer, or by Put on overwrite
	_pad2 [cacheLine]byte

	// Rejected pushes plus overwritten values.
	overflow atomic.Uint64
}

// New creates a ring holding at most capacity values (minimum 1). Storage is
// rounded up to the next power of two for bitwise modulo.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	size := nextPow2(capacity)
	return &Ring[T]{
		buf:   make([]T, size),
		mask:  uint64(size - 1),
		limit: uint64(capacity),
	}
}

// Push appends v. Returns false if the ring is full (v is NOT written).
func (r *Ring[T]) Push(v T) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= r.limit {
		r.overflow.Add(1)
		return false
	}

	r.buf[head&r.mask] = v
	r.head.Store(head + 1)
	return true
}

// Put appends v, dropping the oldest value when the ring is full.
func (r *Ring[T]) Put(v T) {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= r.limit {
		r.tail.Store(tail + 1)
		r.overflow.Add(1)
	}

	r.buf[head&r.mask] = v
	r.head.Store(head + 1)
}

// Pop removes and returns the oldest value. Returns false if empty.
func (r *Ring[T]) Pop() (T, bool) {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		var zero T
		return zero, false
	}

	v := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return v, true
}

// Last returns up to n of the newest values, oldest first.
func (r *Ring[T]) Last(n int) []T {
	head := r.head.Load()
	tail := r.tail.Load()
	if avail := int(head - tail); n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := head - uint64(n)
	for i := range out {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Values returns every held value, oldest first.
func (r *Ring[T]) Values() []T {
	return r.Last(r.Len())
}

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	r.tail.Store(r.head.Load())
}

// Len returns the current number of values held.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the maximum number of values held.
func (r *Ring[T]) Cap() int {
	return int(r.limit)
}

// Overflow returns the number of rejected pushes and overwritten values.
func (r *Ring[T]) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
