package events

import (
	"context"
	"sync"
)

// Handler reacts to one normalized event. Handlers run to completion before
// the next event is dispatched; bus subscribers are single-writer from the
// core's point of view and need no locking of their own for bus-driven
// mutations.
type Handler func(Event)

// Bus is the single dispatch point between the connection manager and the
// trackers. Events from all transports are funneled through one goroutine
// so arrival order is a total order.
type Bus struct {
	mu   sync.Mutex
	subs map[Kind][]Handler

	ch      chan Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
}

func NewBus() *Bus {
	return &Bus{
		subs: map[Kind][]Handler{},
		ch:   make(chan Event, 64),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe registers a handler for one event kind. Subscribing after Start
// is allowed; the new handler sees only subsequent events.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], h)
}

// Publish queues an event for dispatch. It never blocks the caller's read
// loop indefinitely: once the bus is closed, events are discarded.
func (b *Bus) Publish(ev Event) {
	select {
	case <-b.stop:
	case b.ch <- ev:
	}
}

// Start runs the dispatch loop until ctx is cancelled or Close is called.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case ev := <-b.ch:
				b.dispatch(ev)
			}
		}
	}()
}

// Close stops the dispatch loop and waits for the in-flight handler to
// finish. Idempotent.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.stop) })
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if started {
		<-b.done
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs[ev.Kind]))
	copy(handlers, b.subs[ev.Kind])
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
