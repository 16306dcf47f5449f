package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

type memoryStore struct {
	messages []*models.Message
	events   []*models.EventLog
	err      error
}

func (m *memoryStore) Migrate(ctx context.Context) error { return nil }

func (m *memoryStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return nil, ErrNotFound
}

func (m *memoryStore) ListMessages(ctx context.Context, filters MessageFilters, limit, offset int) ([]*models.Message, int64, error) {
	return m.messages, int64(len(m.messages)), nil
}

func (m *memoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memoryStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	return m.events, int64(len(m.events)), nil
}

func (m *memoryStore) Close() error { return nil }

func TestRecorderHandle(t *testing.T) {
	store := &memoryStore{}
	r := NewRecorder(store, "DN9KGB-12")

	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	r.Handle(&meshcom.Message{
		Source:      "OE1XYZ",
		Destination: "262",
		MessageID:   "42",
		Text:        "hi 'x'",
		RawText:     `hi "x"{7`,
		ObservedAt:  at,
		Firmware:    float64(35),
		Raw:         map[string]interface{}{"src": "OE1XYZ", "msg": `hi "x"{7`},
	})

	if len(store.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(store.messages))
	}

	m := store.messages[0]
	if m.ID == uuid.Nil {
		t.Error("record must have an ID")
	}
	if m.Source != "OE1XYZ" || m.Text != "hi 'x'" || m.RawText != `hi "x"{7` || m.MyCall != "DN9KGB-12" {
		t.Errorf("record = %+v", m)
	}
	if !m.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %v", m.ReceivedAt)
	}
	if m.Metadata["firmware"] != float64(35) {
		t.Errorf("metadata = %v", m.Metadata)
	}
	if raw, ok := m.Metadata["raw"].(map[string]interface{}); !ok || raw["msg"] != `hi "x"{7` {
		t.Errorf("metadata raw = %v", m.Metadata["raw"])
	}
}

func TestRecorderErrorsAreLogged(t *testing.T) {
	store := &memoryStore{err: errors.New("db down")}
	r := NewRecorder(store, "")

	r.Handle(&meshcom.Message{Source: "OE1XYZ", Destination: "*", Text: "x"})
	r.LogEvent(&models.EventLog{Type: models.EventTypeGatewayUp})

	if len(store.messages) != 0 || len(store.events) != 0 {
		t.Error("nothing must be stored on error")
	}
}

func TestRecorderLogEvent(t *testing.T) {
	store := &memoryStore{}
	NewRecorder(store, "").LogEvent(&models.EventLog{Type: models.EventTypeMessageSent, Level: models.EventLevelInfo})

	if len(store.events) != 1 || store.events[0].Type != models.EventTypeMessageSent {
		t.Errorf("events = %+v", store.events)
	}
}
