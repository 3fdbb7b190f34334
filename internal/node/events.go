package node

import (
	"log/slog"
	"sort"
	"sync"
)

// Event types emitted by the node runtime.
const (
	EventValueChange    = "value_change"
	EventReportReceived = "report_received"
	EventClusterCommand = "cluster_command"
	EventFrameDropped   = "frame_dropped"
)

// Event is one node event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// subscription pairs a handler with its event-type filter. An empty filter
// matches every event.
type subscription struct {
	filter string
	fn     EventHandler
}

// EventBus fans node events out to subscribers. Emit runs matching handlers
// synchronously in registration order; a panicking handler is isolated so
// one misbehaving subscriber cannot take down the frame loop.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64
	logger *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subs:   make(map[uint64]subscription),
		logger: logger,
	}
}

func (eb *EventBus) subscribe(filter string, fn EventHandler) func() {
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = subscription{filter: filter, fn: fn}
	eb.mu.Unlock()
	return func() {
		eb.mu.Lock()
		delete(eb.subs, id)
		eb.mu.Unlock()
	}
}

// On registers a handler for one event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, fn EventHandler) func() {
	return eb.subscribe(eventType, fn)
}

// OnAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(fn EventHandler) func() {
	return eb.subscribe("", fn)
}

// Emit delivers an event to every matching subscriber.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	ids := make([]uint64, 0, len(eb.subs))
	for id, sub := range eb.subs {
		if sub.filter == "" || sub.filter == event.Type {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]EventHandler, len(ids))
	for i, id := range ids {
		fns[i] = eb.subs[id].fn
	}
	eb.mu.RUnlock()

	for _, fn := range fns {
		eb.deliver(event, fn)
	}
}

func (eb *EventBus) deliver(event Event, fn EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
		}
	}()
	fn(event)
}
