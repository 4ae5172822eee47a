package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pithecene-io/screener/iox"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	cfg.BaseURL = ts.URL
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(iox.CloseFunc(c))
	return c
}

func TestScreen_Success(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/screener" {
			t.Errorf("expected /screener, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		var body map[string]string
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		gotQuery = body["query"]
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"analysis":"{\"ticker\":\"AAPL\"}"}`)
	}, Config{})

	got, err := c.Screen(t.Context(), "How is AAPL doing?")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if gotQuery != "How is AAPL doing?" {
		t.Errorf("server saw query %q", gotQuery)
	}
	m, ok := got.(map[string]any)
	if !ok || m["analysis"] != `{"ticker":"AAPL"}` {
		t.Errorf("body = %#v", got)
	}
}

func TestScreen_BasePathPreserved(t *testing.T) {
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, `{}`)
	}, Config{})
	c.base.Path = "/api/v1/"

	if _, err := c.Screen(t.Context(), "q"); err != nil {
		t.Fatal(err)
	}
	if path != "/api/v1/screener" {
		t.Errorf("path = %q", path)
	}
}

func TestScreen_NonJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "  Markets are closed.\n")
	}, Config{})

	got, err := c.Screen(t.Context(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Markets are closed." {
		t.Errorf("body = %#v", got)
	}
}

func TestScreen_BodyLimit(t *testing.T) {
	old := maxBodyBytes
	maxBodyBytes = 16
	t.Cleanup(func() { maxBodyBytes = old })

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "at limit", body: `{"ticker":"AAP"}`},
		{name: "over limit", body: `{"ticker":"AAPL"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}, Config{})

			got, err := c.Screen(t.Context(), "q")
			if tt.wantErr {
				if !errors.Is(err, ErrBodyTooLarge) || got != nil {
					t.Errorf("got %#v, %v; want ErrBodyTooLarge", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if m, ok := got.(map[string]any); !ok || m["ticker"] != "AAP" {
				t.Errorf("body = %#v", got)
			}
		})
	}
}

func TestScreen_EmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, Config{})

	got, err := c.Screen(t.Context(), "q")
	if err != nil || got != nil {
		t.Errorf("got %#v, %v; want nil, nil", got, err)
	}
}

func TestScreen_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		wantMsg    string
	}{
		{"detail string", http.StatusInternalServerError, `{"detail":"rate limited"}`, "rate limited", "rate limited"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, "field required; too long", "field required; too long"},
		{"no detail", http.StatusBadGateway, `{"error":"upstream"}`, "", "HTTP 502"},
		{"html body", http.StatusServiceUnavailable, `<html>down</html>`, "", "HTTP 503"},
		{"empty body", http.StatusNotFound, ``, "", "HTTP 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, Config{})

			_, err := c.Screen(t.Context(), "q")
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected *StatusError, got %T: %v", err, err)
			}
			if statusErr.Code != tt.status {
				t.Errorf("Code = %d, want %d", statusErr.Code, tt.status)
			}
			if statusErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", statusErr.Detail, tt.wantDetail)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestScreen_CustomHeaders(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{}`)
	}, Config{Headers: map[string]string{"Authorization": "Bearer token-123"}})

	if _, err := c.Screen(t.Context(), "q"); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer token-123" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestScreen_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := New(Config{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Screen(t.Context(), "q")
	if err == nil {
		t.Fatal("expected network error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("network failure should not be a StatusError: %v", err)
	}
}

func TestScreen_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Config{})
	defer close(release)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Screen(ctx, "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"message":"Welcome to the Stock Screener API"}`)
	}, Config{})

	got, err := c.Ping(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if m, _ := got.(map[string]any); m["message"] == nil {
		t.Errorf("body = %#v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "localhost:8000"},
		{"ftp", "ftp://example.com"},
		{"malformed", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{BaseURL: tt.url}); err == nil {
				t.Errorf("New(%q) should fail", tt.url)
			}
		})
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:8000"})
	if err != nil {
		t.Fatal(err)
	}
	if c.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.config.Timeout, DefaultTimeout)
	}
	if c.BaseURL() != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
}
