// Package events provides the in-process event bus used to fan calendar
// lifecycle notifications out to the SSE and WebSocket streams.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies a category of event
type EventType string

// Event types emitted across the system
const (
	HolidaysLoaded        EventType = "holidays_loaded"
	ContinuousTableLoaded EventType = "continuous_table_loaded"
	ViewBuilt             EventType = "view_built"
	SourceFetched         EventType = "source_fetched"
	CacheCleanupCompleted EventType = "cache_cleanup_completed"
	BackupCompleted       EventType = "backup_completed"
	ErrorOccurred         EventType = "error_occurred"
)

// AllTypes returns every known event type. Stream handlers use it to
// subscribe to the full firehose when no filter is given.
func AllTypes() []EventType {
	return []EventType{
		HolidaysLoaded,
		ContinuousTableLoaded,
		ViewBuilt,
		SourceFetched,
		CacheCleanupCompleted,
		BackupCompleted,
		ErrorOccurred,
	}
}

// Event is a single emitted event
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(*Event)

// Bus is a simple in-process publish/subscribe bus keyed by event type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[int]Handler
	nextID   int
	log      zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[int]Handler),
		log:      log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns a function
// that removes the subscription. Stream handlers call it when the client
// disconnects so handlers do not accumulate across connections.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[eventType][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// SubscriberCount reports how many handlers are registered for one event
// type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Emit publishes an event with untyped payload data.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.dispatch(&Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// Publish publishes a typed payload. The event type comes from the payload
// itself.
func (b *Bus) Publish(module string, data EventData) {
	b.dispatch(&Event{
		ID:        uuid.New().String(),
		Type:      data.EventType(),
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (b *Bus) dispatch(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", event.Module).
		Int("handlers", len(handlers)).
		Msg("Dispatching event")

	for _, h := range handlers {
		h(event)
	}
}
