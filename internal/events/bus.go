// Package events provides an in-process event bus for stream lifecycle
// notifications.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(StreamConnectedEvent{...})
func (b *Bus) Publish(ev Event) {
	// The generic Publish needs the concrete type, hence the type switch.
	switch e := ev.(type) {
	case StreamConnectedEvent:
		event.Publish(b.dispatcher, e)
	case StreamDisconnectedEvent:
		event.Publish(b.dispatcher, e)
	case StreamReconnectingEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStartedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStoppedEvent:
		event.Publish(b.dispatcher, e)
	case IngestStoppedEvent:
		event.Publish(b.dispatcher, e)
	case DetectionSampleEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function; the handler's
// parameter type selects which events it receives. Returns an unsubscribe
// function.
// Usage: unsub := bus.Subscribe(func(e StreamConnectedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamConnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamDisconnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamReconnectingEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(IngestStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DetectionSampleEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// No-op for unrecognized handler types
		return func() {}
	}
}
