package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

// Recorder persists accepted messages; its Handle method is a gateway listener
type Recorder struct {
	store   Store
	myCall  string
	timeout time.Duration
}

// NewRecorder creates a message recorder
func NewRecorder(store Store, myCall string) *Recorder {
	return &Recorder{store: store, myCall: myCall, timeout: 5 * time.Second}
}

// Handle stores one message
func (r *Recorder) Handle(msg *meshcom.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	record := models.NewMessage(msg, r.myCall)
	if err := r.store.SaveMessage(ctx, record); err != nil {
		log.Error().Err(err).Str("src", msg.Source).Str("dst", msg.Destination).Msg("Failed to save message")
		return
	}

	log.Debug().Str("id", record.ID.String()).Msg("Message saved")
}

// LogEvent writes an event log entry, logging on failure
func (r *Recorder) LogEvent(event *models.EventLog) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.CreateEventLog(ctx, event); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to create event log")
	}
}
