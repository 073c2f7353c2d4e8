package ring

import (
	"fmt"
	"sync/atomic"
)

// Queue is a bounded single-producer handoff queue. When full, Offer drops
// the oldest queued element to make room, so a stalled consumer costs lost
// samples rather than memory.
type Queue[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most size elements.
func NewQueue[T any](size int) (*Queue[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid queue size %d", size)
	}
	return &Queue[T]{ch: make(chan T, size)}, nil
}

// Offer enqueues v without blocking and reports how many queued elements
// were dropped to make room.
func (q *Queue[T]) Offer(v T) (dropped int) {
	for {
		select {
		case q.ch <- v:
			return dropped
		default:
		}
		// Queue is full, drop oldest and retry
		select {
		case <-q.ch:
			dropped++
			q.dropped.Add(1)
		default:
			// consumer drained it first
		}
	}
}

// C returns the receive side, for consumers that select on new elements.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Drain removes and returns every queued element without blocking, oldest first.
func (q *Queue[T]) Drain() []T {
	var out []T
	for {
		select {
		case v := <-q.ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped returns the total number of elements evicted by Offer.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
