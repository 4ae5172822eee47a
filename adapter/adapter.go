// Package adapter defines the notification boundary for settled queries.
//
// Adapters publish query completion notifications to downstream systems.
// Publishing is best-effort: the orchestrator logs and counts failures but
// never lets them affect the query outcome.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/types"
)

// EventType is the event_type of every published event.
const EventType = "query_completed"

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// QueryCompletedEvent is the payload published when a query settles.
type QueryCompletedEvent struct {
	ContractVersion string   `json:"contract_version"`
	EventType       string   `json:"event_type"` // always "query_completed"
	SessionID       string   `json:"session_id"`
	EntryID         string   `json:"entry_id,omitempty"` // history entry, success only
	Query           string   `json:"query"`
	Outcome         string   `json:"outcome"` // success, failed
	Error           string   `json:"error,omitempty"`
	ResultKind      string   `json:"result_kind"` // structured, text, empty
	Tickers         []string `json:"tickers,omitempty"`
	StageCount      int      `json:"stage_count"`
	Timestamp       string   `json:"timestamp"` // ISO 8601
	DurationMs      int64    `json:"duration_ms"`
}

// NewQueryCompletedEvent builds the event for a settled query. errMsg is
// empty on success.
func NewQueryCompletedEvent(meta *types.SessionMeta, entryID, query string, result analysis.Result, errMsg string, settled time.Time, elapsed time.Duration) *QueryCompletedEvent {
	ev := &QueryCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventType,
		EntryID:         entryID,
		Query:           query,
		Outcome:         OutcomeSuccess,
		Error:           errMsg,
		ResultKind:      result.Kind().String(),
		StageCount:      len(result.Stages()),
		Timestamp:       settled.UTC().Format(time.RFC3339Nano),
		DurationMs:      elapsed.Milliseconds(),
	}
	if meta != nil {
		ev.SessionID = meta.SessionID
	}
	if errMsg != "" {
		ev.Outcome = OutcomeFailed
	}
	for _, t := range result.Tickers() {
		if t.Ticker != analysis.Unknown {
			ev.Tickers = append(ev.Tickers, t.Ticker)
		}
	}
	return ev
}

// Adapter publishes query completion events to a downstream system.
type Adapter interface {
	// Publish sends a query completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *QueryCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
