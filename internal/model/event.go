// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "device.connected"
	EventDeviceDisconnected EventType = "device.disconnected"
	EventDeviceLost         EventType = "device.lost"
	EventSettingsLoaded     EventType = "settings.loaded"
	EventSettingsApplied    EventType = "settings.applied"
	EventPersistenceChanged EventType = "settings.persistence"
	EventSavedToWheel       EventType = "settings.saved_to_wheel"
	EventSavedToPc          EventType = "settings.saved_to_pc"
	EventTelemetryTorque    EventType = "telemetry.torque"
	EventSerialLine         EventType = "serial.line"
)

// Event represents an event in the system
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps a new event
func NewEvent(eventType EventType, source string, data interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// TorqueSample is a single telemetry reading
type TorqueSample struct {
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
