package changes

import (
	"sync"

	"github.com/google/uuid"
)

// Bus delivers events to subscribers of a pin. Publish never blocks: each
// subscriber has an unbounded queue drained by its own goroutine.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscription[T]]struct{}
	closed bool
}

// NewBus creates an empty bus
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uuid.UUID]map[*Subscription[T]]struct{})}
}

// Subscription receives events for one pin in publish order
type Subscription[T any] struct {
	bus   *Bus[T]
	pinID uuid.UUID
	out   chan T
	done  chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	once   sync.Once
}

// Subscribe registers for events of pinID. Callers must Close the subscription.
func (b *Bus[T]) Subscribe(pinID uuid.UUID) *Subscription[T] {
	s := &Subscription[T]{bus: b, pinID: pinID, out: make(chan T), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		close(s.out)
		return s
	}
	set, ok := b.subs[pinID]
	if !ok {
		set = make(map[*Subscription[T]]struct{})
		b.subs[pinID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	go s.drain()
	return s
}

// Publish queues ev for every current subscriber of pinID
func (b *Bus[T]) Publish(pinID uuid.UUID, ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[pinID] {
		s.push(ev)
	}
}

// Subscribers returns the number of subscribers for pinID
func (b *Bus[T]) Subscribers(pinID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[pinID])
}

// Close closes every subscription and rejects new ones
func (b *Bus[T]) Close() {
	b.mu.Lock()
	var all []*Subscription[T]
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.subs = make(map[uuid.UUID]map[*Subscription[T]]struct{})
	b.closed = true
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (b *Bus[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[s.pinID]
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.pinID)
	}
}

// C returns the channel events are delivered on. It is closed after Close.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Close unsubscribes. Queued events that were not received are dropped.
func (s *Subscription[T]) Close() {
	s.bus.remove(s)
	s.stop()
}

func (s *Subscription[T]) push(ev T) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription[T]) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription[T]) drain() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
