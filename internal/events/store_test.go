package events

import (
	"context"
	"testing"
)

type stubBus struct {
	published  []Event
	subscribed []string
	closed     bool
	publishErr error
}

func (b *stubBus) Publish(ctx context.Context, event Event) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, event)
	return nil
}

func (b *stubBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.subscribed = append(b.subscribed, topic)
	return nil
}

func (b *stubBus) Close() error {
	b.closed = true
	return nil
}

func TestOutboxStorePublishRejectsInvalidEvent(t *testing.T) {
	stub := &stubBus{}
	store := NewOutboxStore(nil, stub)

	if err := store.Publish(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for event with no type")
	}
	if len(stub.published) != 0 {
		t.Fatalf("expected no delivery for an invalid event, got %d", len(stub.published))
	}
}

func TestOutboxStorePublishRejectsMissingID(t *testing.T) {
	stub := &stubBus{}
	store := NewOutboxStore(nil, stub)

	err := store.Publish(context.Background(), Event{Type: EventManualDataSaved})
	if err == nil {
		t.Fatal("expected error for event with no ID")
	}
}

func TestOutboxStoreDelegatesSubscribeAndClose(t *testing.T) {
	stub := &stubBus{}
	store := NewOutboxStore(nil, stub)

	if err := store.Subscribe(context.Background(), EventManualDataSaved, func(Event) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stub.subscribed) != 1 || stub.subscribed[0] != EventManualDataSaved {
		t.Fatalf("expected subscribe to delegate to the wrapped bus, got %+v", stub.subscribed)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stub.closed {
		t.Fatal("expected close to delegate to the wrapped bus")
	}
}
