package events

import (
	"testing"
	"time"
)

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	// Must not panic.
	b.Publish(Event{Source: SourceAgent, Kind: KindRequestStart})
}

func TestNilBusSubscriberCount(t *testing.T) {
	var b *Bus
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestPublishSingleSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe(8)
	defer b.Unsubscribe(ch)

	b.Publish(Event{
		Source: SourceAgent,
		Kind:   KindRequestStart,
		Data:   map[string]any{"request_id": "r_abc"},
	})

	select {
	case got := <-ch:
		if got.Source != SourceAgent || got.Kind != KindRequestStart {
			t.Errorf("got event %v", got)
		}
		if got.Timestamp.IsZero() {
			t.Error("Publish did not stamp the event")
		}
		reqID, ok := got.Data["request_id"].(string)
		if !ok || reqID != "r_abc" {
			t.Errorf("got request_id %v, want %q", got.Data["request_id"], "r_abc")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	b := New()
	const n = 5
	channels := make([]<-chan Event, n)
	for i := range n {
		channels[i] = b.Subscribe(8)
	}
	defer func() {
		for _, ch := range channels {
			b.Unsubscribe(ch)
		}
	}()

	b.Publish(Event{Source: SourceTools, Kind: KindToolCall})
	for i, ch := range channels {
		select {
		case got := <-ch:
			if got.Kind != KindToolCall {
				t.Errorf("subscriber %d got kind %q", i, got.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	// The second publish must not block even though the buffer is full.
	b.Publish(Event{Source: SourceAgent, Kind: KindLLMCall})
	b.Publish(Event{Source: SourceAgent, Kind: KindLLMResponse})

	got := <-ch
	if got.Kind != KindLLMCall {
		t.Errorf("got kind %q, want %q", got.Kind, KindLLMCall)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected dropped event, got %v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
	// Double unsubscribe is a no-op.
	b.Unsubscribe(ch)
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount())
	}
}
