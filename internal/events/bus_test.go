package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamConnectedEvent, 1)

	unsub := bus.Subscribe(func(e StreamConnectedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(StreamConnectedEvent{Stream: "cam1", URL: "rtsp://cam.local/1"})

	select {
	case e := <-received:
		if e.Stream != "cam1" {
			t.Errorf("event.Stream = %q, want cam1", e.Stream)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestSubscribeSelectsByType(t *testing.T) {
	bus := New()
	connected := make(chan struct{}, 1)

	unsub := bus.Subscribe(func(e StreamConnectedEvent) {
		connected <- struct{}{}
	})
	defer unsub()

	// Different event type must not reach the handler
	bus.Publish(StreamDisconnectedEvent{Stream: "cam1"})

	select {
	case <-connected:
		t.Error("handler received an event of the wrong type")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeUnknownHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(s string) {})
	unsub() // must not panic
}
