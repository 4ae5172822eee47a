// Package redis announces settled queries on a Redis pub/sub channel.
//
// Subscribers receive the JSON-encoded adapter.QueryCompletedEvent. A
// publish with nobody listening is not an error; connection failures are
// retried on the adapter.Retry schedule.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/screener/adapter"
)

const (
	DefaultChannel = "screener:query_completed"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Config configures the publisher. URL uses the redis:// form accepted by
// go-redis, e.g. redis://:secret@localhost:6379/0.
type Config struct {
	URL     string
	Channel string
	Timeout time.Duration // per PUBLISH
	Retries int
	Backoff time.Duration
}

// Adapter publishes events with PUBLISH.
type Adapter struct {
	config Config
	retry  adapter.Retry
	client *goredis.Client
}

// New parses the URL and fills in defaults. No connection is made until
// the first Publish.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("redis adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Adapter{
		config: cfg,
		retry:  adapter.Retry{Retries: cfg.Retries, Backoff: cfg.Backoff},
		client: goredis.NewClient(opts),
	}, nil
}

// Channel returns the channel events are published on.
func (a *Adapter) Channel() string { return a.config.Channel }

// Publish announces event on the channel.
func (a *Adapter) Publish(ctx context.Context, event *adapter.QueryCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", event.EventType, err)
	}
	err = adapter.Deliver(ctx, a.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		err := a.client.Publish(ctx, a.config.Channel, body).Err()
		if errors.Is(err, goredis.ErrClosed) {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: publish to %s: %w", a.config.Channel, err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
