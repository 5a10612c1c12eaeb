// ring_buffer.go - Generic fixed-capacity ring buffer with drop accounting.
// Oldest entries are evicted in FIFO order when capacity is reached; a
// monotonic drop counter records evictions for back-pressure reporting.
// Thread-safe: all access guarded by RWMutex.
package buffers

import "sync"

// RingBuffer is a generic fixed-capacity circular buffer.
type RingBuffer[T any] struct {
	mu sync.RWMutex

	entries  []T
	capacity int
	head     int // index where the next write goes once full

	totalAdded   int64
	totalDropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity (minimum 1).
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Append adds one entry, evicting the oldest if the buffer is full.
func (rb *RingBuffer[T]) Append(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
	} else {
		rb.entries[rb.head] = entry
		rb.head = (rb.head + 1) % rb.capacity
		rb.totalDropped++
	}
	rb.totalAdded++
}

// Snapshot returns the buffered entries in insertion order (oldest first).
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, 0, len(rb.entries))
	if len(rb.entries) < rb.capacity {
		out = append(out, rb.entries...)
		return out
	}
	out = append(out, rb.entries[rb.head:]...)
	out = append(out, rb.entries[:rb.head]...)
	return out
}

// Len returns the number of buffered entries.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Dropped returns the number of entries evicted due to capacity.
func (rb *RingBuffer[T]) Dropped() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.totalDropped
}

// TotalAdded returns the monotonic count of entries ever appended.
func (rb *RingBuffer[T]) TotalAdded() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.totalAdded
}
