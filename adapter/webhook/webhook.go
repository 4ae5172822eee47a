// Package webhook delivers query_completed events to an HTTP endpoint.
//
// Each event is POSTed as JSON. Server errors and network failures are
// retried on the adapter.Retry schedule; a 4xx answer means the receiver
// rejected the event and delivery stops.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/screener/adapter"
	"github.com/pithecene-io/screener/iox"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Receivers can route on these headers without decoding the body.
const (
	EventHeader   = "X-Screener-Event"
	SessionHeader = "X-Screener-Session"
)

// maxReason bounds how much of a rejection body is kept in StatusError.
const maxReason = 256

// Config configures the webhook adapter. Only URL is required.
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter posts events to one URL.
type Adapter struct {
	config Config
	retry  adapter.Retry
	client *http.Client
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
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
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish posts event, retrying per the configured schedule.
func (a *Adapter) Publish(ctx context.Context, event *adapter.QueryCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", event.EventType, err)
	}
	err = adapter.Deliver(ctx, a.retry, func(ctx context.Context) error {
		err := a.post(ctx, event, body)
		var se *StatusError
		if errors.As(err, &se) && se.Rejected() {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// StatusError reports a non-2xx answer from the receiver.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("receiver answered %d", e.Code)
	}
	return fmt.Sprintf("receiver answered %d: %s", e.Code, e.Reason)
}

// Rejected reports whether the receiver refused the event itself (4xx).
func (e *StatusError) Rejected() bool { return e.Code >= 400 && e.Code < 500 }

func (a *Adapter) post(ctx context.Context, event *adapter.QueryCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.EventType)
	if event.SessionID != "" {
		req.Header.Set(SessionHeader, event.SessionID)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode/100 == 2 {
		return nil
	}
	reason, _ := io.ReadAll(io.LimitReader(resp.Body, maxReason))
	return &StatusError{Code: resp.StatusCode, Reason: strings.TrimSpace(string(reason))}
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
