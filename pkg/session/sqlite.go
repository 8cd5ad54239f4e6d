package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SQLiteStore keeps the id in a key/value table, for hosts that already keep
// their client state in SQLite.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string, key string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	if key == "" {
		key = DefaultKey
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, key: key}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS client_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: migrate")
	}
	return nil
}

func (s *SQLiteStore) SessionID(ctx context.Context) (string, bool) {
	if s == nil || s.db == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, s.key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("sqlite session store: read failed, treating session as absent")
		return "", false
	}
	return id, id != ""
}

func (s *SQLiteStore) SetSessionID(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at_ms = excluded.updated_at_ms
	`, s.key, id, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite session store: upsert")
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, s.key); err != nil {
		return errors.Wrap(err, "sqlite session store: delete")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SQLiteDSNForFile builds a DSN for a database file, creating its directory.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(err, "sqlite session store: create db dir")
		}
	}
	// WAL so a running chat and `session show` can share the file. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
