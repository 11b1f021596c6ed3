package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Publish(Event{Kind: KindTurnStarted, ThreadID: "t1"})

	select {
	case e := <-ch:
		if e.Kind != KindTurnStarted || e.ThreadID != "t1" {
			t.Errorf("event = %+v", e)
		}
		if e.At.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Kind: KindToolCalled}) // must not panic
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := New()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindToolCalled})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on full subscriber buffer")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // double cancel is fine

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	bus.Publish(Event{Kind: KindTurnCompleted}) // must not panic on removed sub
}
