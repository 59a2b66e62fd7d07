package events

import "github.com/kelindar/event"

// Forward copies every state, error and exit event into ch until the
// returned function is called. Frame events are not forwarded. Events are
// dropped while ch is full so a slow reader never stalls the dispatcher.
func (b *Bus) Forward(ch chan<- any) func() {
	send := func(e any) {
		select {
		case ch <- e:
		default:
		}
	}
	unsubscribers := []func(){
		event.Subscribe(b.dispatcher, func(e EndpointStateChangedEvent) { send(e) }),
		event.Subscribe(b.dispatcher, func(e SenderStateChangedEvent) { send(e) }),
		event.Subscribe(b.dispatcher, func(e SenderErrorEvent) { send(e) }),
		event.Subscribe(b.dispatcher, func(e ReceiverStateChangedEvent) { send(e) }),
		event.Subscribe(b.dispatcher, func(e ReceiverErrorEvent) { send(e) }),
		event.Subscribe(b.dispatcher, func(e ProcessExitedEvent) { send(e) }),
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}
