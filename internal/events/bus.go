package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventCycleStarted       EventType = "CYCLE_STARTED"
	EventCycleCompleted     EventType = "CYCLE_COMPLETED"
	EventCycleSkipped       EventType = "CYCLE_SKIPPED"
	EventTradeOpened        EventType = "TRADE_OPENED"
	EventTradeClosed        EventType = "TRADE_CLOSED"
	EventPositionReinforced EventType = "POSITION_REINFORCED"
	EventEmergencyExit      EventType = "EMERGENCY_EXIT"
	EventStrengthUpdated    EventType = "STRENGTH_UPDATED"
	EventEngineStarted      EventType = "ENGINE_STARTED"
	EventEngineStopped      EventType = "ENGINE_STOPPED"
	EventError              EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer cannot stall the trading loop.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(ticket int64, symbol, direction string, volume, fillPrice float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"ticket":     ticket,
			"symbol":     symbol,
			"direction":  direction,
			"volume":     volume,
			"fill_price": fillPrice,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(ticket int64, symbol, reason string, pnl float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"ticket": ticket,
			"symbol": symbol,
			"reason": reason,
			"pnl":    pnl,
		},
	})
}

// PublishEmergencyExit publishes a portfolio-level exit event
func (eb *EventBus) PublishEmergencyExit(reason, detail string, symbols []string) {
	eb.Publish(Event{
		Type: EventEmergencyExit,
		Data: map[string]interface{}{
			"reason":  reason,
			"detail":  detail,
			"symbols": symbols,
		},
	})
}

// PublishReinforcement publishes a reinforcement execution event
func (eb *EventBus) PublishReinforcement(parentTicket, newTicket int64, symbol, eventType string, volume float64) {
	eb.Publish(Event{
		Type: EventPositionReinforced,
		Data: map[string]interface{}{
			"parent_ticket": parentTicket,
			"new_ticket":    newTicket,
			"symbol":        symbol,
			"event_type":    eventType,
			"volume":        volume,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(component, message string) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"message":   message,
		},
	})
}
