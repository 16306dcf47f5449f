package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Schema
	Migrate(ctx context.Context) error

	// Message methods
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, filters MessageFilters, limit, offset int) ([]*models.Message, int64, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// MessageFilters represents filters for message history
type MessageFilters struct {
	Source      *string
	Destination *string
	StartTime   *time.Time
	EndTime     *time.Time
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
