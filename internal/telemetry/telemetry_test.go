package telemetry

import (
	"testing"
	"time"
)

func TestChannelSinkDeliversToSubscriber(t *testing.T) {
	sink := NewChannelSink(4)
	events, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	sink.Emit(Event{Category: "job", Action: "received", Label: "req1", Value: 1})

	select {
	case ev := <-events:
		if ev.Category != "job" || ev.Action != "received" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("expected Emit to stamp Timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestChannelSinkDropsWhenSubscriberFull(t *testing.T) {
	sink := NewChannelSink(1)
	events, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	sink.Emit(Event{Category: "a", Action: "one"})
	sink.Emit(Event{Category: "a", Action: "two"}) // dropped, buffer full

	ev := <-events
	if ev.Action != "one" {
		t.Fatalf("expected first event to survive, got %q", ev.Action)
	}

	select {
	case extra := <-events:
		t.Fatalf("expected no second event, got %+v", extra)
	default:
	}
}

func TestChannelSinkUnsubscribeIdempotent(t *testing.T) {
	sink := NewChannelSink(1)
	_, unsubscribe := sink.Subscribe()

	unsubscribe()
	unsubscribe() // must not panic
}

func TestChannelSinkUnsubscribeStopsDelivery(t *testing.T) {
	sink := NewChannelSink(1)
	events, unsubscribe := sink.Subscribe()
	unsubscribe()

	sink.Emit(Event{Category: "a", Action: "one"})

	if _, ok := <-events; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(ev Event) {
	r.events = append(r.events, ev)
}

type panickingSink struct{}

func (panickingSink) Emit(Event) {
	panic("boom")
}

func TestMultiSinkSwallowsPanickingSink(t *testing.T) {
	rec := &recordingSink{}
	multi := NewMultiSink(panickingSink{}, rec)

	multi.Emit(Event{Category: "x", Action: "y"})

	if len(rec.events) != 1 {
		t.Fatalf("expected the well-behaved sink to still receive the event, got %d", len(rec.events))
	}
}

func TestLogSinkDoesNotPanic(t *testing.T) {
	sink := NewLogSink("")
	sink.Emit(Event{Category: "job", Action: "completed", Label: "req1", Value: 42})
}
