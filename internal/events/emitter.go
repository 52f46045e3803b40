// Package events carries the fire-and-forget notifications the engine
// publishes after each processed tanker. Delivery is at-most-once and
// best-effort; correctness only ever depends on the persisted state.
package events

import (
	"context"
	"sync"
	"time"

	"tankersim/internal/store"
)

// Event describes what one commit changed for one tanker.
type Event struct {
	TankerID       string
	PreviousStatus store.Status
	// NewStatus is nil for a telemetry-only update.
	NewStatus *store.Status
	Timestamp time.Time
}

// Transitioned reports whether the event carries a status change.
func (e Event) Transitioned() bool {
	return e.NewStatus != nil
}

// Emitter publishes events to downstream subscribers. Implementations must
// never block the caller beyond the context deadline and must swallow
// delivery failures.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Nop discards every event. Used in tests and when no consumer is wired.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Fanout emits to every wrapped emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, e Event) {
	for _, em := range f {
		em.Emit(ctx, e)
	}
}

// Bus is an in-process fan-out emitter. Each subscriber gets its own
// buffered channel; a full channel drops the event rather than blocking the
// simulation pass.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its channel plus an unsubscribe function. Unsubscribing closes the
// channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Emit delivers the event to every subscriber without blocking. Subscribers
// that cannot keep up miss events; they are expected to tolerate that.
func (b *Bus) Emit(_ context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close drops all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
