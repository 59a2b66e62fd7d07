package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(SenderStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case EndpointStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SenderStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SenderErrorEvent:
		event.Publish(b.dispatcher, e)
	case ReceiverStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ReceiverErrorEvent:
		event.Publish(b.dispatcher, e)
	case FrameAvailableEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns an unsubscribe function. Unknown handler types are ignored.
// Usage: unsub := bus.Subscribe(func(e ReceiverErrorEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(EndpointStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SenderStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SenderErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReceiverStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReceiverErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameAvailableEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
