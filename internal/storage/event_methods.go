package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
)

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO event_logs (
            id, created_at, type, level, code, description, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.Type, event.Level, event.Code,
		event.Description, event.Details,
	)

	return err
}

// ListEventLogs lists event logs with filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	q := eventFilterQuery(filters)

	// Get count
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_logs"+q.where(), q.args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	// Get rows
	page, args := q.page("created_at", limit, offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, type, level, code, description, details FROM event_logs"+q.where()+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.Type, &event.Level,
			&event.Code, &event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	return events, count, rows.Err()
}
