// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"ffb-control-service/internal/model"
)

const (
	eventBufferSize      = 1000
	subscriberBufferSize = 100
)

// allEvents is the subscription key receiving every event type
const allEvents model.EventType = "*"

// EventBus manages event distribution
type EventBus struct {
	subscribers map[model.EventType][]chan model.Event
	events      chan model.Event
	mutex       sync.RWMutex
	logger      *zap.Logger
	stopOnce    sync.Once
	done        chan struct{}
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.Event),
		events:      make(chan model.Event, eventBufferSize),
		done:        make(chan struct{}),
	}
}

// SetLogger sets the logger used for dropped events
func (eb *EventBus) SetLogger(logger *zap.Logger) {
	eb.logger = logger
}

// Start distributes events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Stop ends distribution. Subscriber channels are closed.
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.done)

		eb.mutex.Lock()
		defer eb.mutex.Unlock()
		for eventType, subscribers := range eb.subscribers {
			for _, subscriber := range subscribers {
				close(subscriber)
			}
			delete(eb.subscribers, eventType)
		}
	})
}

// Publish queues an event without blocking the publisher
func (eb *EventBus) Publish(event model.Event) {
	select {
	case eb.events <- event:
	default:
		// Event bus is full, log warning
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}

// Subscribe subscribes to events of a specific type
func (eb *EventBus) Subscribe(eventType model.EventType) <-chan model.Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.Event, subscriberBufferSize)
	select {
	case <-eb.done:
		close(subscriber)
		return subscriber
	default:
	}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// SubscribeAll subscribes to every event
func (eb *EventBus) SubscribeAll() <-chan model.Event {
	return eb.Subscribe(allEvents)
}

// Unsubscribe removes and closes a subscription
func (eb *EventBus) Unsubscribe(ch <-chan model.Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for eventType, subscribers := range eb.subscribers {
		for i, subscriber := range subscribers {
			if (<-chan model.Event)(subscriber) != ch {
				continue
			}
			close(subscriber)
			eb.subscribers[eventType] = append(subscribers[:i:i], subscribers[i+1:]...)
			return
		}
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, key := range []model.EventType{event.Type, allEvents} {
		for _, subscriber := range eb.subscribers[key] {
			select {
			case subscriber <- event:
			default:
				// Subscriber is slow, skip
			}
		}
	}
}
