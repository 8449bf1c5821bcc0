// internal/service/events.go
package service

import (
	"ffb-control-service/internal/model"
)

// EventPublisher receives the events raised by the services
type EventPublisher interface {
	Publish(event model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
