// Package querylog records every search query in an embedded SQLite
// database for usage analysis and retention-bounded auditing.
package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tgindex/lib/sl"
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Record is one logged query.
type Record struct {
	Id               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	UserId           int64     `json:"user_id"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	ChatId           int64     `json:"chat_id"`
	ChatType         string    `json:"chat_type"`
	Query            string    `json:"query"`
	SearchType       string    `json:"search_type"`
	SearchUser       string    `json:"search_user"`
	SearchMode       string    `json:"search_mode"`
	ResultsCount     int64     `json:"results_count"`
	PageNumber       int       `json:"page_number"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
}

const schema = `
CREATE TABLE IF NOT EXISTS query_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	chat_id INTEGER NOT NULL,
	chat_type TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL,
	search_type TEXT NOT NULL DEFAULT '',
	search_user TEXT NOT NULL DEFAULT '',
	search_mode TEXT NOT NULL DEFAULT '',
	results_count INTEGER NOT NULL DEFAULT 0,
	page_number INTEGER NOT NULL DEFAULT 1,
	processing_time_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_query_logs_timestamp ON query_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_query_logs_user_id ON query_logs(user_id);
CREATE INDEX IF NOT EXISTS idx_query_logs_chat_id ON query_logs(chat_id);

CREATE TABLE IF NOT EXISTS admin_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	value_type TEXT NOT NULL DEFAULT 'str',
	description TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	updated_by INTEGER NOT NULL DEFAULT 0
);
`

// New opens the database at path and ensures the schema exists.
func New(path string, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
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
	s := &Store{db: db, log: log.With(sl.Module("querylog"))}
	if err = s.seedDefaults(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// seedDefaults inserts the tunable keys on first run; operator-set values
// are never overwritten.
func (s *Store) seedDefaults(ctx context.Context) error {
	defaults := []struct {
		key, value, valueType, description string
	}{
		{"enable_query_logging", "true", TypeBool, "record every search query"},
		{"log_retention_days", "30", TypeInt, "queries older than this are purged"},
		{"max_log_entries", "100000", TypeInt, "hard cap on stored queries"},
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range defaults {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO admin_settings (key, value, value_type, description, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			d.key, d.value, d.valueType, d.description, now,
		)
		if err != nil {
			return fmt.Errorf("seed setting %s: %w", d.key, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Log appends one record. Failures are returned so the caller can decide;
// the search pipeline logs and carries on, a lost log line must never fail
// a search.
func (s *Store) Log(ctx context.Context, r Record) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_logs
			(timestamp, user_id, username, first_name, chat_id, chat_type,
			 query, search_type, search_user, search_mode,
			 results_count, page_number, processing_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339), r.UserId, r.Username, r.FirstName,
		r.ChatId, r.ChatType, r.Query, r.SearchType, r.SearchUser,
		r.SearchMode, r.ResultsCount, r.PageNumber, r.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// Recent returns the newest records for one user, newest first.
func (s *Store) Recent(ctx context.Context, userId int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_id, username, first_name, chat_id, chat_type,
		       query, search_type, search_user, search_mode,
		       results_count, page_number, processing_time_ms
		FROM query_logs
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("select query logs: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the number of logged queries, optionally bounded to one user
// (userId 0 means everyone).
func (s *Store) Count(ctx context.Context, userId int64) (int64, error) {
	var n int64
	var err error
	if userId == 0 {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM query_logs`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM query_logs WHERE user_id = ?`, userId).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count query logs: %w", err)
	}
	return n, nil
}

// Purge removes records older than the retention window and returns how
// many were dropped.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge query logs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.With(slog.Int64("purged", n)).Info("query log retention applied")
	}
	return n, nil
}

// Trim deletes the oldest records beyond the entry cap and returns how
// many were dropped.
func (s *Store) Trim(ctx context.Context, maxEntries int64) (int64, error) {
	if maxEntries <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM query_logs WHERE id NOT IN (
			SELECT id FROM query_logs ORDER BY id DESC LIMIT ?
		)`, maxEntries)
	if err != nil {
		return 0, fmt.Errorf("trim query logs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.With(slog.Int64("trimmed", n)).Info("query log entry cap applied")
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(
			&r.Id, &ts, &r.UserId, &r.Username, &r.FirstName, &r.ChatId,
			&r.ChatType, &r.Query, &r.SearchType, &r.SearchUser, &r.SearchMode,
			&r.ResultsCount, &r.PageNumber, &r.ProcessingTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
