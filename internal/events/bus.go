package events

import (
	"sync"
	"sync/atomic"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

// DefaultBufferSize is the subscription channel buffer used when a subscriber
// does not choose one.
const DefaultBufferSize = 64

// Bus fan-outs events to subscribers. Publishing never blocks: a subscriber
// whose channel is full misses the event, and the miss is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*Subscription
	nextID  int
	closed  bool
	dropped atomic.Int64
	logger  logger.Logger
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	id    int
	types map[Type]struct{}
	ch    chan Event
	bus   *Bus
	once  sync.Once
}

// NewBus creates a new event bus.
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: log,
	}
}

// Subscribe registers a subscriber for the given event types. An empty type
// list subscribes to everything. A buffer of 0 uses DefaultBufferSize.
func (b *Bus) Subscribe(buffer int, types ...Type) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	sub := &Subscription{
		ch:  make(chan Event, buffer),
		bus: b,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.matches(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("event dropped for slow subscriber",
				logger.String("event_type", string(e.Type)),
				logger.Int("subscriber", sub.id))
		}
	}
}

// Dropped returns the number of events missed by slow subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Events returns the subscription's receive channel. The channel is closed
// when the subscription or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close removes the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		if _, ok := s.bus.subs[s.id]; ok {
			delete(s.bus.subs, s.id)
			close(s.ch)
		}
	})
}

func (s *Subscription) matches(t Type) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}
