package session

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore keeps the id under a single Redis key without expiry.
type RedisStore struct {
	client *redis.Client
	key    string
	owned  bool
}

var _ Store = &RedisStore{}

// NewRedisStore wraps an existing client. Close does not close it.
func NewRedisStore(client *redis.Client, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis session store: nil client")
	}
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}, nil
}

func NewRedisStoreFromURL(redisURL string, key string) (*RedisStore, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, errors.New("redis session store: empty url")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "redis session store: parse url")
	}
	s, err := NewRedisStore(redis.NewClient(opt), key)
	if err != nil {
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) SessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("redis session store: read failed, treating session as absent")
		return "", false
	}
	return id, id != ""
}

func (s *RedisStore) SetSessionID(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.client.Set(ctx, s.key, id, 0).Err(); err != nil {
		return errors.Wrap(err, "redis session store: set")
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "redis session store: del")
	}
	return nil
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
