//
//
package fanout

import "sync"

// Buffer keeps the most recent values up to a fixed capacity.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
}

// NewBuffer creates a buffer holding at most capacity values. A capacity
// below one is treated as one.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest value when full.
func (b *Buffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, item)
}

// Items returns a copy of the buffered values, oldest first.
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered values.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Capacity returns the buffer capacity.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// Clear drops all buffered values.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}
