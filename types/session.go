// Package types defines shared identity types for the screener client.
//
//nolint:revive // types is a common Go package naming convention
package types

// SessionMeta identifies one client process talking to one analysis service.
// Every log entry and published event carries these fields.
type SessionMeta struct {
	// SessionID is a per-process identifier (UUIDv7).
	SessionID string `json:"session_id"`
	// ServiceURL is the base URL of the analysis service.
	ServiceURL string `json:"service_url"`
	// Interactive is true when the session drives the TUI.
	Interactive bool `json:"interactive"`
}
