package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Code        string     `json:"code" db:"code"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	// Gateway events
	EventTypeGatewayUp   EventType = "GATEWAY_UP"
	EventTypeGatewayDown EventType = "GATEWAY_DOWN"

	// Message events
	EventTypeMessageSent EventType = "MESSAGE_SENT"
	EventTypeSendError   EventType = "SEND_ERROR"

	// System events
	EventTypeAPICall     EventType = "API_CALL"
	EventTypeIntegration EventType = "INTEGRATION"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
