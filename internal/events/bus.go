// Package events provides an in-process publish/subscribe bus.
package events

import (
	"sync"
	"time"
)

// EventType identifies the kind of event on the bus.
type EventType string

const (
	EventTradeOpened      EventType = "TRADE_OPENED"
	EventTradeClosed      EventType = "TRADE_CLOSED"
	EventPortfolioUpdate  EventType = "PORTFOLIO_UPDATE"
	EventPriceUpdate      EventType = "PRICE_UPDATE"
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventAlertTriggered   EventType = "ALERT_TRIGGERED"
	EventAutoPilotToggled EventType = "AUTOPILOT_TOGGLED"
	EventScanCompleted    EventType = "SCAN_COMPLETED"
	EventError            EventType = "ERROR"
)

// Event is a single bus message.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles published events. Subscribers run on their own
// goroutines and must not assume ordering across event types.
type Subscriber func(Event)

// Bus fans events out to type-specific and catch-all subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to all matching subscribers. Delivery is
// asynchronous so a slow subscriber never blocks the publisher.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened reports a new paper position.
func (b *Bus) PublishTradeOpened(symbol string, entryPrice, quantity float64) {
	b.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"entryPrice": entryPrice,
			"quantity":   quantity,
		},
	})
}

// PublishTradeClosed reports a closed paper position.
func (b *Bus) PublishTradeClosed(symbol string, exitPrice, pnl, pnlPercent float64, reason string) {
	b.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"exitPrice":  exitPrice,
			"pnl":        pnl,
			"pnlPercent": pnlPercent,
			"reason":     reason,
		},
	})
}

// PublishAlertTriggered reports a fired price alert.
func (b *Bus) PublishAlertTriggered(symbol, condition string, target, price float64) {
	b.Publish(Event{
		Type: EventAlertTriggered,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"condition": condition,
			"target":    target,
			"price":     price,
		},
	})
}

// PublishError reports a component failure.
func (b *Bus) PublishError(component string, err error) {
	b.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"error":     err.Error(),
		},
	})
}
