// Package client talks to the remote analysis service.
//
// The service is an opaque HTTP JSON endpoint: POST /screener submits a
// query, GET / answers a welcome message. Response bodies are decoded as
// JSON when possible and returned raw otherwise; interpreting them is the
// analysis package's job.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/screener/iox"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 60 * time.Second

// ScreenPath is the query endpoint relative to the base URL.
const ScreenPath = "/screener"

// maxBodyBytes bounds how much of a response body is read.
var maxBodyBytes int64 = 16 << 20

// ErrBodyTooLarge is returned when a response body exceeds the read limit.
var ErrBodyTooLarge = errors.New("response body too large")

// Config configures the service client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000 (required).
	BaseURL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 60s).
	Timeout time.Duration
	// Transport overrides the HTTP transport (optional, for tests).
	Transport http.RoundTripper
}

// Client issues requests to the analysis service.
type Client struct {
	config Config
	base   *url.URL
	http   *http.Client
}

// New creates a client from the given config.
// Returns an error if the base URL is empty or not absolute.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client requires a service URL")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid service URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: service URL must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		config: cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.config.BaseURL }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	// Detail is the server-provided "detail" message, if any.
	Detail string
	// Body is the decoded response body.
	Body any
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Screen submits one query and returns the decoded response body.
// Non-2xx responses return *StatusError; network failures are wrapped.
func (c *Client) Screen(ctx context.Context, query string) (any, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("client: marshal query: %w", err)
	}
	return c.do(ctx, http.MethodPost, ScreenPath, body)
}

// Ping calls the service root and returns its decoded welcome body.
func (c *Client) Ping(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodGet, "/", nil)
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// do performs a single request and decodes the body.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(raw)) > maxBodyBytes {
		return nil, fmt.Errorf("read response: %w (limit %d bytes)", ErrBodyTooLarge, maxBodyBytes)
	}
	decoded := decodeBody(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: detailOf(decoded), Body: decoded}
	}
	return decoded, nil
}

// decodeBody returns the JSON value of raw, the trimmed text when it is not
// JSON, or nil when it is blank.
func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed)
	}
	return v
}

// detailOf extracts the error detail of a failure body. Validation errors
// carry a list of {"msg": ...} objects instead of a string.
func detailOf(body any) string {
	m, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	switch d := m["detail"].(type) {
	case string:
		return strings.TrimSpace(d)
	case []any:
		var msgs []string
		for _, item := range d {
			if obj, ok := item.(map[string]any); ok {
				if msg, ok := obj["msg"].(string); ok && msg != "" {
					msgs = append(msgs, msg)
				}
			}
		}
		return strings.Join(msgs, "; ")
	default:
		return ""
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
