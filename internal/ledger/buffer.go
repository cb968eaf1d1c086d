package ledger

import "sync"

// buffer is a ring of at most max entries; the oldest entries are
// overwritten first.
type buffer[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // index of the oldest entry once the ring is full
	max     int
	dropped int
}

func newBuffer[T any](capacity int) *buffer[T] {
	return &buffer[T]{max: capacity}
}

func (b *buffer[T]) push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < b.max {
		b.items = append(b.items, v)
		return
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % b.max
	b.dropped++
}

// last returns up to limit of the newest entries, oldest first.
func (b *buffer[T]) last(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]T, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, b.items[(b.head+i)%n])
	}
	return out
}

func (b *buffer[T]) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.head = 0
	b.dropped = 0
}

func (b *buffer[T]) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *buffer[T]) droppedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
