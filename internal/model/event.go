// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the bus topic of an event
type EventType string

const (
	EventStateChanged     EventType = "state"
	EventResponse         EventType = "response"
	EventCommandCompleted EventType = "command"
	EventSerialTrace      EventType = "serial"
)

// Event is a message published on the process event bus
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Port      string      `json:"port,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps a new event
func NewEvent(eventType EventType, port string, data interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Port:      port,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// StateChangedData is the payload of EventStateChanged
type StateChangedData struct {
	Previous ConnectionState `json:"previous"`
	Current  ConnectionState `json:"current"`
	Error    string          `json:"error,omitempty"`
}

// CommandCompletedData is the payload of EventCommandCompleted
type CommandCompletedData struct {
	CommandID  uuid.UUID       `json:"command_id"`
	Gcode      string          `json:"gcode"`
	Sequence   int             `json:"sequence"`
	Retries    int             `json:"retries"`
	DurationMS int64           `json:"duration_ms"`
	Events     []ResponseEvent `json:"events"`
	Error      string          `json:"error,omitempty"`
}

// SerialTraceData is the payload of EventSerialTrace
type SerialTraceData struct {
	Direction  string `json:"direction"` // "tx" or "rx"
	Sequence   int    `json:"sequence,omitempty"`
	Line       string `json:"line"`
	Retransmit bool   `json:"retransmit,omitempty"`
}
