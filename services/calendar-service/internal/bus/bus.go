// Package bus is the in-process publish/subscribe channel sibling calendar
// consumers use to hear about appointment writes without sharing state.
// Delivery is at-least-once and unordered; nothing is persisted, so a
// handler subscribed after an event fires never sees it. Because realtime
// deltas can fire for the same logical change, every handler must be safe
// to invoke twice.
package bus

import "sync"

// Appointment lifecycle events.
const (
	EventAppointmentCreated = "appointment.created"
	EventAppointmentUpdated = "appointment.updated"
	EventAppointmentDeleted = "appointment.deleted"
)

type Handler func(detail any)

type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]Handler
}

func New() *Bus {
	return &Bus{handlers: map[string]map[int]Handler{}}
}

// Subscribe registers a handler for one event name. The returned func
// unsubscribes; calling it more than once is harmless.
func (b *Bus) Subscribe(event string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[event] == nil {
		b.handlers[event] = map[int]Handler{}
	}
	id := b.nextID
	b.nextID++
	b.handlers[event][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[event], id)
	}
}

// Publish invokes every currently-subscribed handler for the event on the
// caller's goroutine. Handlers registered mid-publish are not invoked for
// this event.
func (b *Bus) Publish(event string, detail any) {
	b.mu.Lock()
	snapshot := make([]Handler, 0, len(b.handlers[event]))
	for _, h := range b.handlers[event] {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()

	for _, h := range snapshot {
		h(detail)
	}
}
