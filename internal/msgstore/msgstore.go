// Package msgstore is a durable SQLite queue for messages relayed between
// the bot and the ingestor when a direct HTTP call is not possible.
package msgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tgindex/entity"
	"tgindex/lib/sl"
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS relay_messages (
	id TEXT PRIMARY KEY,
	from_service TEXT NOT NULL,
	to_service TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_to_service ON relay_messages(to_service);
`

func New(path string, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, log: log.With(sl.Module("msgstore"))}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue stores one message addressed to a service and returns its id, a
// fresh UUID unless the caller supplied one.
func (s *Store) Enqueue(ctx context.Context, m entity.RelayMessage) (string, error) {
	if m.Id == "" {
		m.Id = uuid.New().String()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	payload := string(m.Payload)
	if payload == "" {
		payload = "null"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_messages (id, from_service, to_service, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Id, m.FromService, m.ToService, m.Type, payload, m.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue relay message: %w", err)
	}
	return m.Id, nil
}

// Dequeue returns up to limit undelivered messages for a service in enqueue
// order. Messages stay in the queue until acked.
func (s *Store) Dequeue(ctx context.Context, toService string, limit int) ([]entity.RelayMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_service, to_service, type, payload, created_at
		FROM relay_messages
		WHERE to_service = ?
		ORDER BY rowid
		LIMIT ?`, toService, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue relay messages: %w", err)
	}
	defer rows.Close()

	var out []entity.RelayMessage
	for rows.Next() {
		var m entity.RelayMessage
		var payload string
		if err = rows.Scan(&m.Id, &m.FromService, &m.ToService, &m.Type, &payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relay message: %w", err)
		}
		m.Payload = json.RawMessage(payload)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ack deletes one processed message.
func (s *Store) Ack(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relay_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ack relay message %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ack relay message %s: not found", id)
	}
	return nil
}

// Reap removes messages older than the retention window, acked or not; a
// receiver that never picks a message up must not pin it forever.
func (s *Store) Reap(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := float64(time.Now().Add(-olderThan).UnixNano()) / float64(time.Second)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM relay_messages WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap relay messages: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.With(slog.Int64("reaped", n)).Debug("stale relay messages removed")
	}
	return n, nil
}
