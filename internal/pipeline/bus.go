package pipeline

import (
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// Handler processes an Event; return error to signal failure.
type Handler func(Event) error

// Bus is a simple synchronous pub/sub event bus. Handler failures are
// logged and never change a run's outcome.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{subscribers: map[string][]Handler{}} }

// Subscribe registers a handler for a given event name.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[event] = append(b.subscribers[event], h)
	b.mu.Unlock()
}

// Publish delivers an event to all handlers synchronously and returns the
// number of handlers that failed.
func (b *Bus) Publish(e Event) int {
	b.mu.RLock()
	hs := append([]Handler(nil), b.subscribers[e.Name()]...)
	b.mu.RUnlock()

	failed := 0
	for _, h := range hs {
		if err := h(e); err != nil {
			failed++
			slog.Warn("Event handler failed", slog.String("event", e.Name()), logfields.Error(err))
		}
	}
	return failed
}
