package events

import (
	"image"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SenderStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e SenderStateChangedEvent) {
		received <- e
	})
	defer unsub()

	want := SenderStateChangedEvent{State: "active", URL: "rtmp://localhost/live/cam"}
	bus.Publish(want)

	select {
	case got := <-received:
		if got != want {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan ReceiverErrorEvent, 1)
	received2 := make(chan ReceiverErrorEvent, 1)

	defer bus.Subscribe(func(e ReceiverErrorEvent) { received1 <- e })()
	defer bus.Subscribe(func(e ReceiverErrorEvent) { received2 <- e })()

	bus.Publish(ReceiverErrorEvent{Kind: "STREAM_PROBE"})

	for i, ch := range []chan ReceiverErrorEvent{received1, received2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i+1)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ProcessExitedEvent, 1)

	unsub := bus.Subscribe(func(e ProcessExitedEvent) {
		received <- e
	})

	bus.Publish(ProcessExitedEvent{Name: "encoder"})
	<-received

	unsub()

	bus.Publish(ProcessExitedEvent{Name: "decoder"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypesAreIsolated(t *testing.T) {
	bus := New()
	states := make(chan ReceiverStateChangedEvent, 1)
	defer bus.Subscribe(func(e ReceiverStateChangedEvent) { states <- e })()

	bus.Publish(FrameAvailableEvent{Source: "receiver", Image: image.NewRGBA(image.Rect(0, 0, 2, 2))})

	select {
	case e := <-states:
		t.Fatalf("state subscriber received %+v for a frame event", e)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestForward(t *testing.T) {
	bus := New()
	ch := make(chan any, 4)
	stop := bus.Forward(ch)

	bus.Publish(EndpointStateChangedEvent{Capability: "audio_output", State: "suspended"})
	bus.Publish(FrameAvailableEvent{Source: "receiver"})

	select {
	case e := <-ch:
		got, ok := e.(EndpointStateChangedEvent)
		if !ok || got.State != "suspended" {
			t.Errorf("received %#v, want suspended endpoint event", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded to channel")
	}

	select {
	case e := <-ch:
		t.Errorf("received %#v, frame events should not be forwarded", e)
	case <-time.After(50 * time.Millisecond):
	}

	stop()
	bus.Publish(ReceiverErrorEvent{Kind: "SOURCE_OPEN"})
	select {
	case e := <-ch:
		t.Errorf("received %#v after stop", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestForwardDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any) // never read
	stop := bus.Forward(ch)
	defer stop()

	done := make(chan struct{})
	go func() {
		bus.Publish(SenderErrorEvent{Kind: "ENCODER_OPEN"})
		bus.Publish(SenderErrorEvent{Kind: "ENCODER_OPEN"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full forward channel")
	}
}
