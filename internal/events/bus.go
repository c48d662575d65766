package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventUsageConsumed EventType = "USAGE_CONSUMED"
	EventQuotaExceeded EventType = "QUOTA_EXCEEDED"
	EventUsageRollover EventType = "USAGE_ROLLOVER"
	EventHabitTracked  EventType = "HABIT_TRACKED"
	EventQuizCompleted EventType = "QUIZ_COMPLETED"
)

// Event represents a system event. AccountID scopes delivery to the owner.
type Event struct {
	Type      EventType              `json:"type"`
	AccountID string                 `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
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

// Publish sends an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishUsageConsumed publishes an admitted metered call
func (eb *EventBus) PublishUsageConsumed(accountID, feature, period string, used, limit int64) {
	eb.Publish(Event{
		Type:      EventUsageConsumed,
		AccountID: accountID,
		Data: map[string]interface{}{
			"feature":   feature,
			"period":    period,
			"used":      used,
			"limit":     limit,
			"remaining": limit - used,
		},
	})
}

// PublishQuotaExceeded publishes a denied metered call
func (eb *EventBus) PublishQuotaExceeded(accountID, feature, period string, used, limit int64) {
	eb.Publish(Event{
		Type:      EventQuotaExceeded,
		AccountID: accountID,
		Data: map[string]interface{}{
			"feature": feature,
			"period":  period,
			"used":    used,
			"limit":   limit,
		},
	})
}

// PublishRollover publishes a monthly reset observed during admission
func (eb *EventBus) PublishRollover(accountID, from, to string) {
	eb.Publish(Event{
		Type:      EventUsageRollover,
		AccountID: accountID,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishHabitTracked publishes a habit entry with the resulting streak
func (eb *EventBus) PublishHabitTracked(accountID, day string, streak int) {
	eb.Publish(Event{
		Type:      EventHabitTracked,
		AccountID: accountID,
		Data: map[string]interface{}{
			"day":    day,
			"streak": streak,
		},
	})
}

// PublishQuizCompleted publishes a scored quiz
func (eb *EventBus) PublishQuizCompleted(accountID, quizID string, score, total, percentage int) {
	eb.Publish(Event{
		Type:      EventQuizCompleted,
		AccountID: accountID,
		Data: map[string]interface{}{
			"quizId":     quizID,
			"score":      score,
			"total":      total,
			"percentage": percentage,
		},
	})
}
