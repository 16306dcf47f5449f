package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
)

const messageColumns = "id, src, dst, msg_id, msg, raw_msg, my_call, metadata, received_at"

// SaveMessage stores an accepted message
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO messages (` + messageColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Source, msg.Destination, msg.MessageID, msg.Text,
		msg.RawText, msg.MyCall, msg.Metadata, msg.ReceivedAt,
	)

	return err
}

// GetMessage returns a message by ID
func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1", id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// ListMessages lists message history with filters, newest first
func (s *PostgresStore) ListMessages(ctx context.Context, filters MessageFilters, limit, offset int) ([]*models.Message, int64, error) {
	q := messageFilterQuery(filters)

	// Get count
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+q.where(), q.args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	// Get rows
	page, args := q.page("received_at", limit, offset)
	rows, err := s.db.QueryContext(ctx, "SELECT "+messageColumns+" FROM messages"+q.where()+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, msg)
	}

	return messages, count, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID, &msg.Source, &msg.Destination, &msg.MessageID, &msg.Text,
		&msg.RawText, &msg.MyCall, &msg.Metadata, &msg.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
