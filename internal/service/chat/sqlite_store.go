package chat

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists transcripts and greeted flags in a SQLite database so
// both survive a process restart.
type SQLiteStore struct{ db *sql.DB }

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout for path.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("sqlite path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sqlite path: %w", err)
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	return "file:" + abs + "?" + q.Encode(), nil
}

// NewSQLiteStore opens dsn and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS chat_transcripts (
  session_id TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS visitor_flags (
  visitor_id TEXT PRIMARY KEY,
  greeted_at TIMESTAMP NOT NULL
);
`)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM chat_transcripts WHERE session_id = ?`, sessionID)
	var payload string
	switch err := row.Scan(&payload); err {
	case nil:
		return []byte(payload), nil
	case sql.ErrNoRows:
		return nil, ErrTranscriptNotFound
	default:
		return nil, err
	}
}

func (s *SQLiteStore) SaveTranscript(ctx context.Context, sessionID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_transcripts (session_id, payload, updated_at) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) DeleteTranscript(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_transcripts WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) HasGreeted(ctx context.Context, visitorID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM visitor_flags WHERE visitor_id = ?`, visitorID)
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

func (s *SQLiteStore) MarkGreeted(ctx context.Context, visitorID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO visitor_flags (visitor_id, greeted_at) VALUES (?, ?)`,
		visitorID, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
