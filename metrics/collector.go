// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters over the lifetime of one CLI or TUI
// session. It is a leaf package with no internal dependencies; failure
// kinds are plain strings to keep it free of the query package.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Query lifecycle
	QueriesSubmitted  int64            `json:"queries_submitted"`
	QueriesRejected   int64            `json:"queries_rejected"`
	QueriesSucceeded  int64            `json:"queries_succeeded"`
	QueriesFailed     int64            `json:"queries_failed"`
	QueriesSuperseded int64            `json:"queries_superseded"`
	FailuresByKind    map[string]int64 `json:"failures_by_kind"`

	// Normalization
	ResultsStructured int64 `json:"results_structured"`
	ResultsText       int64 `json:"results_text"`
	ResultsEmpty      int64 `json:"results_empty"`

	// History persistence
	HistoryWriteSuccess int64 `json:"history_write_success"`
	HistoryWriteFailure int64 `json:"history_write_failure"`
	HistoryLoadFailure  int64 `json:"history_load_failure"`

	// Notifications
	NotifySuccess int64 `json:"notify_success"`
	NotifyFailure int64 `json:"notify_failure"`

	// Archive (per-call, not per-record)
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`

	// Dimensions (informational, set at construction)
	HistoryBackend string `json:"history_backend"`
	Adapter        string `json:"adapter"`
	SessionID      string `json:"session_id"`
}

// Collector accumulates metrics during a session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	queriesSubmitted  int64
	queriesRejected   int64
	queriesSucceeded  int64
	queriesFailed     int64
	queriesSuperseded int64
	failuresByKind    map[string]int64

	resultsStructured int64
	resultsText       int64
	resultsEmpty      int64

	historyWriteSuccess int64
	historyWriteFailure int64
	historyLoadFailure  int64

	notifySuccess int64
	notifyFailure int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	historyBackend string
	adapter        string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// adapter is empty when no notification adapter is configured.
func NewCollector(historyBackend, adapter, sessionID string) *Collector {
	return &Collector{
		failuresByKind: make(map[string]int64),
		historyBackend: historyBackend,
		adapter:        adapter,
		sessionID:      sessionID,
	}
}

func (c *Collector) add(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// --- Query lifecycle ---

// IncQuerySubmitted records a query that passed validation.
func (c *Collector) IncQuerySubmitted() {
	if c == nil {
		return
	}
	c.add(&c.queriesSubmitted)
}

// IncQueryRejected records an empty query rejected before any request.
func (c *Collector) IncQueryRejected() {
	if c == nil {
		return
	}
	c.add(&c.queriesRejected)
}

// IncQuerySucceeded records a query that settled with a result.
func (c *Collector) IncQuerySucceeded() {
	if c == nil {
		return
	}
	c.add(&c.queriesSucceeded)
}

// IncQueryFailed records a failed query, bucketed by kind
// (e.g. "network", "http_status", "payload_error").
func (c *Collector) IncQueryFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queriesFailed++
	c.failuresByKind[kind]++
	c.mu.Unlock()
}

// IncQuerySuperseded records a response discarded because a newer
// submission replaced it.
func (c *Collector) IncQuerySuperseded() {
	if c == nil {
		return
	}
	c.add(&c.queriesSuperseded)
}

// --- Normalization ---

// IncResultKind records the canonical kind of a normalized response
// ("structured", "text" or "empty").
func (c *Collector) IncResultKind(kind string) {
	if c == nil {
		return
	}
	switch kind {
	case "structured":
		c.add(&c.resultsStructured)
	case "text":
		c.add(&c.resultsText)
	case "empty":
		c.add(&c.resultsEmpty)
	}
}

// --- History ---

// IncHistoryWriteSuccess records a successful history blob write.
func (c *Collector) IncHistoryWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.historyWriteSuccess)
}

// IncHistoryWriteFailure records a failed history blob write or delete.
func (c *Collector) IncHistoryWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.historyWriteFailure)
}

// IncHistoryLoadFailure records a history blob that could not be read or
// decoded.
func (c *Collector) IncHistoryLoadFailure() {
	if c == nil {
		return
	}
	c.add(&c.historyLoadFailure)
}

// --- Notifications ---

// IncNotifySuccess records a delivered query_completed event.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.add(&c.notifySuccess)
}

// IncNotifyFailure records an undeliverable query_completed event.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.add(&c.notifyFailure)
}

// --- Archive ---

// IncArchiveWriteSuccess records a successful archive dataset write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess)
}

// IncArchiveWriteFailure records a failed archive dataset write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failures := make(map[string]int64, len(c.failuresByKind))
	for k, v := range c.failuresByKind {
		failures[k] = v
	}

	return Snapshot{
		QueriesSubmitted:  c.queriesSubmitted,
		QueriesRejected:   c.queriesRejected,
		QueriesSucceeded:  c.queriesSucceeded,
		QueriesFailed:     c.queriesFailed,
		QueriesSuperseded: c.queriesSuperseded,
		FailuresByKind:    failures,

		ResultsStructured: c.resultsStructured,
		ResultsText:       c.resultsText,
		ResultsEmpty:      c.resultsEmpty,

		HistoryWriteSuccess: c.historyWriteSuccess,
		HistoryWriteFailure: c.historyWriteFailure,
		HistoryLoadFailure:  c.historyLoadFailure,

		NotifySuccess: c.notifySuccess,
		NotifyFailure: c.notifyFailure,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		HistoryBackend: c.historyBackend,
		Adapter:        c.adapter,
		SessionID:      c.sessionID,
	}
}
