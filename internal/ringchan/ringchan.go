// Package ringchan provides a bounded channel with overwrite-oldest semantics,
// used to decouple transport callbacks from the consumers draining them.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring wraps a buffered channel so that producers never block: when the
// buffer is full the oldest element is discarded. Producers may race with
// Close; a Put after Close is a counted no-op rather than a panic, which
// matters because transport layers can deliver a late callback after teardown.
type Ring[T any] struct {
	ch     chan T
	mu     sync.Mutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
}

// New creates a Ring with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// Put inserts a value, discarding the oldest buffered one when full. Returns
// false if the ring is already closed (the value is dropped).
func (r *Ring[T]) Put(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}

	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch:
			r.dropped.Add(1)
		default:
		}
		r.ch <- v
	}
	r.written.Add(1)
	return true
}

// C returns the receive side. Consumers range over it until Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Close closes the receive side. Idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// Stats is a point-in-time snapshot of producer-side counters.
type Stats struct {
	Written int64 // values accepted into the buffer
	Dropped int64 // values discarded: overwritten, or Put after Close
}

// Stats returns current counter values.
func (r *Ring[T]) Stats() Stats {
	return Stats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
	}
}
