package events

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block; work that issues inspector commands belongs
// on a separate goroutine.
type Handler func(Event)

// Bus fans events out to every subscriber whose kind filter matches.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Subscription is a registered handler. The zero kind set matches every kind.
type Subscription struct {
	id      uint64
	bus     *Bus
	kinds   map[Kind]bool
	handler Handler
	once    sync.Once
	closeFn func()
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers h for the given kinds, or for all kinds when none are given.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		bus:     b,
		handler: h,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	b.subs[sub.id] = sub
	return sub
}

// Channel subscribes a buffered channel. Events that arrive while the buffer
// is full are dropped and counted. The channel is closed on Unsubscribe.
func (b *Bus) Channel(buffer int, kinds ...Kind) (<-chan Event, *Subscription) {
	ch := make(chan Event, buffer)
	var mu sync.Mutex
	closed := false

	sub := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}, kinds...)

	sub.closeFn = func() {
		mu.Lock()
		defer mu.Unlock()
		closed = true
		close(ch)
	}
	return ch, sub
}

// Publish delivers e to matching subscribers in subscription order.
func (b *Bus) Publish(e Event) {
	b.published.Add(1)

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(e.Kind) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, s := range subs {
		s.handler(e)
	}
}

// Stats returns the number of published and dropped events.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *Subscription) matches(k Kind) bool {
	return s.kinds == nil || s.kinds[k]
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}
