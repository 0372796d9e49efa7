package buffer

import "sync"

// Growable is a FIFO hand-off between the supervisor's event loop and the
// level sinks. It grows instead of blocking the producer, and it never
// reorders: items come out in the exact order they went in.
type Growable[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	enqueued int64
	dequeued int64
	resizes  int
}

// New creates a buffer with the given initial capacity.
func New[T any](initialCapacity int) *Growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Growable[T]{
		items:    make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends an item, doubling capacity when the buffer passes 70% full.
// Returns false if the buffer has been closed.
func (b *Growable[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.enqueued++

	b.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking until one is available
// or the buffer is closed. Returns false only when closed and drained.
func (b *Growable[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryPop removes the oldest item without blocking.
func (b *Growable[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// Drain removes up to max items (all items if max <= 0) preserving order.
func (b *Growable[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close marks the buffer closed. Push returns false afterwards; consumers
// drain the remaining items and then see the closed signal.
func (b *Growable[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Growable[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Growable[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns counters for monitoring.
func (b *Growable[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:    b.count,
		Capacity: b.capacity,
		Enqueued: b.enqueued,
		Dequeued: b.dequeued,
		Resizes:  b.resizes,
	}
}

// Stats describes buffer occupancy and throughput.
type Stats struct {
	Count    int
	Capacity int
	Enqueued int64
	Dequeued int64
	Resizes  int
}

// pop removes the head item. Caller must hold the lock and ensure count > 0.
func (b *Growable[T]) pop() T {
	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.dequeued++
	return item
}

// grow doubles capacity, compacting the ring to the front. Lock held.
func (b *Growable[T]) grow() {
	next := make([]T, b.capacity*2)
	if b.count > 0 {
		if b.head < b.tail {
			copy(next, b.items[b.head:b.tail])
		} else {
			n := copy(next, b.items[b.head:])
			copy(next[n:], b.items[:b.tail])
		}
	}
	b.items = next
	b.head = 0
	b.tail = b.count
	b.capacity = len(next)
	b.resizes++
}
