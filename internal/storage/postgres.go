package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/meshcom-gateway/meshcom-server/internal/config"
)

// PostgresStore implements Store interface for PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(cfg *config.DatabaseConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id          UUID PRIMARY KEY,
    src         TEXT NOT NULL,
    dst         TEXT NOT NULL,
    msg_id      TEXT NOT NULL DEFAULT '',
    msg         TEXT NOT NULL,
    raw_msg     TEXT NOT NULL,
    my_call     TEXT NOT NULL DEFAULT '',
    metadata    JSONB,
    received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_received_at_idx ON messages (received_at DESC);
CREATE INDEX IF NOT EXISTS messages_src_idx ON messages (src);
CREATE INDEX IF NOT EXISTS messages_dst_idx ON messages (dst);

CREATE TABLE IF NOT EXISTS event_logs (
    id          UUID PRIMARY KEY,
    created_at  TIMESTAMPTZ NOT NULL,
    type        TEXT NOT NULL,
    level       TEXT NOT NULL,
    code        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    details     JSONB
);
CREATE INDEX IF NOT EXISTS event_logs_created_at_idx ON event_logs (created_at DESC);
`

// Migrate creates the tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
