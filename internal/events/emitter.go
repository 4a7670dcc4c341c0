package events

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventType identifies a sync lifecycle event.
type EventType string

const (
	EventSyncStarted          EventType = "sync-started"
	EventSyncCompleted        EventType = "sync-completed"
	EventSyncFailed           EventType = "sync-failed"
	EventConflictDetected     EventType = "conflict-detected"
	EventProviderConnected    EventType = "provider-connected"
	EventProviderDisconnected EventType = "provider-disconnected"
)

// Event is delivered to every subscribed listener.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Listener receives events. Listeners run synchronously on the
// emitting goroutine; slow listeners slow the sync down.
type Listener func(Event)

// Emitter fans events out to subscribed listeners. A listener that
// panics is recovered and logged; delivery to the remaining
// listeners, and the sync itself, continues.
type Emitter struct {
	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	logger    *Logger
}

// NewEmitter creates an emitter.
func NewEmitter(logger *Logger) *Emitter {
	return &Emitter{
		listeners: make(map[int]Listener),
		logger:    logger.WithField("component", "emitter"),
	}
}

// Subscribe registers a listener and returns its unsubscribe func.
func (e *Emitter) Subscribe(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// Emit delivers an event to all listeners in subscription order.
func (e *Emitter) Emit(eventType EventType, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	e.mu.Lock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		e.deliver(fn, event)
	}
}

func (e *Emitter) deliver(fn Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(map[string]interface{}{
				"event": string(event.Type),
				"panic": fmt.Sprintf("%v", r),
			}).Error("Event listener panicked")
		}
	}()
	fn(event)
}
