package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is an in-process notification.
type Event struct {
	Type      string
	Payload   interface{}
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of evType. Handlers run synchronously in
// subscription order; a failing or panicking handler does not stop the others.
func (b *EventBus) Publish(evType string, payload interface{}) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[evType]...)
	b.mu.RUnlock()

	event := Event{Type: evType, Payload: payload, CreatedAt: time.Now()}
	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

// dispatch runs one handler. A panicking handler is logged and skipped.
func (b *EventBus) dispatch(handler EventHandler, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error().Interface("panic", rec).Str("event", event.Type).Msg("event handler panicked")
		}
	}()
	if err := handler(event); err != nil {
		b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
	}
}
