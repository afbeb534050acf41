package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventChainResumed)

	bus.Publish(NewTypedEventWithChain("test", ChainResumedPayload{ChainID: "c1", TotalRemaining: 2}, "c1"))
	bus.Publish(NewTypedEventWithChain("test", TaskDispatchedPayload{ChainID: "c1", TaskID: "t1"}, "c1"))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventChainResumed {
		t.Errorf("expected chain.resumed, got %s", received[0].Type)
	}
	if received[0].ChainID != "c1" {
		t.Errorf("expected chain_id c1, got %s", received[0].ChainID)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent("test", ChainSavedPayload{ChainID: "c1", Status: "running"}))
	bus.Publish(NewTypedEvent("test", TaskFailedPayload{ChainID: "c1", TaskID: "t1", Error: "boom"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	unsubscribe := bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent("test", ChainSavedPayload{ChainID: "c1", Status: "running"}))
	time.Sleep(50 * time.Millisecond)

	unsubscribe()

	bus.Publish(NewTypedEvent("test", ChainSavedPayload{ChainID: "c1", Status: "paused"}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count)
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(4)
	bus.Close()

	// Must not panic.
	bus.Publish(NewTypedEvent("test", ChainSavedPayload{ChainID: "c1", Status: "running"}))
}

func TestBusCloseDeliversNoZeroValueEvents(t *testing.T) {
	bus := NewBus(4)

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	bus.Close()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, e := range received {
		if e.Type == "" {
			t.Fatalf("catch-all subscriber received a zero-value event: %+v", e)
		}
	}
}
