package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventTradeOpened, func(e Event) { got <- e })
	bus.PublishTradeOpened("BTCUSDT", 43000, 0.5)

	select {
	case e := <-got:
		if e.Type != EventTradeOpened {
			t.Errorf("type = %s, want %s", e.Type, EventTradeOpened)
		}
		if e.Data["symbol"] != "BTCUSDT" {
			t.Errorf("symbol = %v", e.Data["symbol"])
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received event")
	}
}

func TestBus_SubscriberIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventTradeClosed, func(e Event) { got <- e })
	bus.PublishTradeOpened("BTCUSDT", 43000, 0.5)

	select {
	case e := <-got:
		t.Fatalf("received unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var seen []EventType
	done := make(chan struct{}, 3)

	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishTradeOpened("BTCUSDT", 43000, 0.5)
	bus.PublishTradeClosed("BTCUSDT", 44000, 500, 2.3, "Take Profit")
	bus.PublishAlertTriggered("ETHUSDT", "above", 3000, 3010)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("only received %d of 3 events", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("seen = %v, want 3 events", seen)
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	bus.Subscribe(EventPriceUpdate, func(e Event) { <-release })

	start := time.Now()
	bus.Publish(Event{Type: EventPriceUpdate})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("publish blocked for %s", elapsed)
	}
	close(release)
}
