// Package redis implements a kv.Store on Redis strings (GET/SET/DEL).
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/screener/kv"
)

// DefaultTimeout is the default per-operation timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis store.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix is prepended to every key (optional).
	Prefix string
	// Timeout is the per-operation timeout (default 5s).
	Timeout time.Duration
}

// Store is a Redis-backed kv.Store.
type Store struct {
	config Config
	client *goredis.Client
}

// New creates a Redis store from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Store{config: cfg, client: goredis.NewClient(opts)}, nil
}

func (s *Store) key(k string) string { return s.config.Prefix + k }

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get %s: %w", key, err)
	}
	return value, nil
}

// Put implements kv.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis store: put %s: %w", key, err)
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis store: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ kv.Store = (*Store)(nil)
