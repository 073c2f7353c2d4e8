// Package ring holds fixed-capacity containers that discard the oldest
// element on overflow.
package ring

import (
	"fmt"
	"sync"
)

// Buffer is a fixed-capacity ring buffer. Once full, each Push evicts the
// oldest element. It is safe for one writer and any number of readers; the
// lock is held only while an element is stored or a snapshot is copied out.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest element
	size  int
	total uint64
}

// NewBuffer creates a buffer holding at most capacity elements.
func NewBuffer[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity %d", capacity)
	}
	return &Buffer[T]{items: make([]T, capacity)}, nil
}

// Push appends v, evicting the oldest element when the buffer is full.
// It reports whether an element was evicted.
func (b *Buffer[T]) Push(v T) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	c := len(b.items)
	if b.size == c {
		b.items[b.head] = v
		b.head = (b.head + 1) % c
		return true
	}
	b.items[(b.head+b.size)%c] = v
	b.size++
	return false
}

// Snapshot returns a copy of the buffered elements, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out, _ := b.SnapshotTotal()
	return out
}

// SnapshotTotal returns a snapshot together with the number of elements
// pushed over the buffer's lifetime. The last element of the snapshot is
// element total-1.
func (b *Buffer[T]) SnapshotTotal() ([]T, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	n := copy(out, b.items[b.head:min(b.head+b.size, len(b.items))])
	copy(out[n:], b.items[:b.size-n])
	return out, b.total
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}
