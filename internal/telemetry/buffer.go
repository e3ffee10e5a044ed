package telemetry

import (
	"sync"
)

// ChannelBuffer is a fixed-capacity FIFO ring for one telemetry stream.
// When full, Push evicts the oldest element. Readers always receive copies.
type ChannelBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // index of the oldest element
	size     int
	capacity int
}

// NewChannelBuffer creates a buffer holding at most capacity elements.
// A non-positive capacity is treated as 1.
func NewChannelBuffer[T any](capacity int) *ChannelBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest element at capacity.
func (b *ChannelBuffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.items[(b.head+b.size)%b.capacity] = v
		b.size++
		return
	}

	// Full: overwrite the oldest slot and advance head
	b.items[b.head] = v
	b.head = (b.head + 1) % b.capacity
}

// Snapshot returns the current contents, oldest first.
func (b *ChannelBuffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%b.capacity]
	}
	return out
}

// Latest returns the most recent element, or false if the buffer is empty.
func (b *ChannelBuffer[T]) Latest() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%b.capacity], true
}

// Filter returns the elements matching keep, oldest first.
func (b *ChannelBuffer[T]) Filter(keep func(T) bool) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []T
	for i := 0; i < b.size; i++ {
		v := b.items[(b.head+i)%b.capacity]
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Reset drops every element. Capacity is unchanged.
func (b *ChannelBuffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}

// Len returns the current number of elements.
func (b *ChannelBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the fixed capacity.
func (b *ChannelBuffer[T]) Cap() int {
	return b.capacity
}
