package session

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// DefaultKey is the fixed name the session id is stored under.
const DefaultKey = "chat_session_id"

// Store persists the single conversation-session id across restarts.
//
// SessionID never fails: storage read errors are logged by the implementation
// and reported as an absent id, so the caller simply creates a new session.
type Store interface {
	SessionID(ctx context.Context) (string, bool)
	SetSessionID(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// Settings selects and configures a Store.
type Settings struct {
	Type     string `yaml:"type"`
	Key      string `yaml:"key"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

func (s Settings) key() string {
	if k := strings.TrimSpace(s.Key); k != "" {
		return k
	}
	return DefaultKey
}

// Open builds the Store described by s.
func Open(s Settings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case TypeMemory:
		return NewMemoryStore(), nil
	case "", TypeFile:
		if strings.TrimSpace(s.Path) == "" {
			return nil, errors.New("session store: file store needs a path")
		}
		return NewFileStore(s.Path, s.key())
	case TypeSQLite:
		if strings.TrimSpace(s.Path) == "" {
			return nil, errors.New("session store: sqlite store needs a path")
		}
		dsn, err := SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn, s.key())
	case TypeRedis:
		return NewRedisStoreFromURL(s.RedisURL, s.key())
	default:
		return nil, errors.Errorf("session store: unknown type %q", s.Type)
	}
}
