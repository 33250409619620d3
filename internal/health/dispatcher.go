package health

import (
	"log/slog"
	"sync"
)

// Handler observes health events.
type Handler func(Event)

// ListenerID identifies a subscribed Handler.
type ListenerID uint64

type subscriber struct {
	id      ListenerID
	handler Handler
}

// Dispatcher fans events out to subscribers.
//
// Delivery is synchronous on the emitting goroutine and follows subscription
// order. A panicking handler is recovered and logged; the remaining handlers
// still receive the event.
type Dispatcher struct {
	log *slog.Logger

	mu          sync.RWMutex
	subscribers []subscriber
	next        ListenerID
}

// NewDispatcher creates a dispatcher with no subscribers.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log.With("component", "health_events")}
}

// Subscribe registers h and returns its id.
func (d *Dispatcher) Subscribe(h Handler) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	d.subscribers = append(d.subscribers, subscriber{id: d.next, handler: h})

	return d.next
}

// Unsubscribe removes the handler with the given id.
// It reports whether the id was subscribed.
func (d *Dispatcher) Unsubscribe(id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subscribers {
		if s.id == id {
			d.subscribers = append(d.subscribers[:i:i], d.subscribers[i+1:]...)

			return true
		}
	}

	return false
}

// Len returns the number of subscribers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.subscribers)
}

// Emit delivers e to every subscriber.
func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	snapshot := append([]subscriber(nil), d.subscribers...)
	d.mu.RUnlock()

	d.log.Debug("Health event", "event", e.EventType(), "provider", e.Provider())

	for _, s := range snapshot {
		d.deliver(s, e)
	}
}

func (d *Dispatcher) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Health event handler panicked",
				"event", e.EventType(),
				"provider", e.Provider(),
				"listener", s.id,
				"panic", r,
			)
		}
	}()

	s.handler(e)
}
