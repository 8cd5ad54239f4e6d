package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileStore keeps a small YAML key/value document on disk, the local
// equivalent of a browser's origin-scoped storage. Other keys in the document
// are preserved.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  string
}

var _ Store = &FileStore{}

func NewFileStore(path string, key string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file session store: empty path")
	}
	if key == "" {
		key = DefaultKey
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "file session store: create dir")
		}
	}
	return &FileStore{path: path, key: key}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) SessionID(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("could not read session file, treating session as absent")
		return "", false
	}
	id := values[s.key]
	return id, id != ""
}

func (s *FileStore) SetSessionID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		// a corrupt file is replaced rather than blocking the session
		log.Warn().Err(err).Str("path", s.path).Msg("overwriting unreadable session file")
		values = map[string]string{}
	}
	if values[s.key] == id {
		return nil
	}
	values[s.key] = id
	return s.writeLocked(values)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		return s.writeLocked(map[string]string{})
	}
	if _, ok := values[s.key]; !ok {
		return nil
	}
	delete(values, s.key)
	return s.writeLocked(values)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readLocked() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "file session store: read")
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return nil, errors.Wrap(err, "file session store: decode")
	}
	return values, nil
}

func (s *FileStore) writeLocked(values map[string]string) error {
	b, err := yaml.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "file session store: encode")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.yaml")
	if err != nil {
		return errors.Wrap(err, "file session store: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "file session store: write")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "file session store: close")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "file session store: rename")
	}
	return nil
}
