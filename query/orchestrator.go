// Package query drives the request lifecycle of the screener client.
//
// The Orchestrator is a small state machine:
//
//	Idle → Submitting → {Succeeded, Failed} → Idle
//
// It validates input, issues one request at a time, normalizes the
// response, starts the simulated stage progress, and commits successful
// results to history. A newer submission abandons the in-flight one; the
// abandoned response is discarded by generation check when it arrives.
package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/screener/adapter"
	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/history"
	"github.com/pithecene-io/screener/log"
	"github.com/pithecene-io/screener/metrics"
	"github.com/pithecene-io/screener/progress"
	"github.com/pithecene-io/screener/types"
)

// DefaultNotifyTimeout bounds one best-effort adapter publish.
const DefaultNotifyTimeout = 5 * time.Second

// Phase is the orchestrator state.
type Phase int

const (
	Idle Phase = iota
	// Submitting means a request is in flight; input is disabled.
	Submitting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service issues one analysis request. *client.Client implements it.
type Service interface {
	Screen(ctx context.Context, query string) (any, error)
}

// Snapshot is the presentation view of the orchestrator.
type Snapshot struct {
	Phase Phase
	// Query is the current input text.
	Query string
	// Error is the inline message of the last failure or rejection.
	Error string
	// Result is the displayed result: the latest response or a recalled entry.
	Result analysis.Result
	// EntryID is the history entry backing Result, if any.
	EntryID string
	// Generation increments on every submission and recall.
	Generation uint64
}

// Loading reports whether a request is in flight.
func (s Snapshot) Loading() bool { return s.Phase == Submitting }

// Config wires an Orchestrator.
type Config struct {
	// Service is the analysis service (required).
	Service Service
	// History is the history store (required).
	History *history.Store
	// Progress animates declared stages (default: progress.New with defaults).
	Progress *progress.Simulator
	// Adapter receives query_completed events (optional).
	Adapter adapter.Adapter
	// NotifyTimeout bounds one adapter publish (default 5s).
	NotifyTimeout time.Duration
	// Session is attached to published events (optional).
	Session *types.SessionMeta
	Logger  *log.Logger
	Metrics *metrics.Collector
	// Now is the clock (default time.Now).
	Now func() time.Time
}

// Orchestrator owns the query, loading and error state.
//
// opMu serializes mutations (submission start, settle, recall); mu guards
// the fields read by Snapshot. The outbound request runs with neither
// held, and mu is never held across calls into the simulator or history.
type Orchestrator struct {
	opMu sync.Mutex

	mu      sync.Mutex
	phase   Phase
	query   string
	errMsg  string
	result  analysis.Result
	entryID string
	gen     uint64
	cancel  context.CancelFunc

	service       Service
	history       *history.Store
	progress      *progress.Simulator
	adapter       adapter.Adapter
	notifyTimeout time.Duration
	session       *types.SessionMeta
	logger        *log.Logger
	metrics       *metrics.Collector
	now           func() time.Time
}

// New creates an Orchestrator in the Idle phase.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Service == nil {
		return nil, errors.New("query orchestrator requires a service")
	}
	if cfg.History == nil {
		return nil, errors.New("query orchestrator requires a history store")
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.New(progress.Config{})
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		service:       cfg.Service,
		history:       cfg.History,
		progress:      cfg.Progress,
		adapter:       cfg.Adapter,
		notifyTimeout: cfg.NotifyTimeout,
		session:       cfg.Session,
		logger:        cfg.Logger.Named("query"),
		metrics:       cfg.Metrics,
		now:           cfg.Now,
	}, nil
}

// Submit validates text and runs one request to completion.
//
// Returns *ValidationError for blank input (no state transition),
// *TransportError on failure (phase Failed), ErrSuperseded when a newer
// submission replaced this one, and nil on success (phase Succeeded).
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		o.mu.Lock()
		o.errMsg = EmptyQueryMessage
		o.mu.Unlock()
		o.metrics.IncQueryRejected()
		return &ValidationError{Message: EmptyQueryMessage}
	}

	gen, reqCtx, cancel := o.begin(ctx, text)
	defer cancel()

	o.metrics.IncQuerySubmitted()
	o.logger.Info("query submitted", map[string]any{
		"query":      trimmed,
		"generation": gen,
	})

	start := o.now()
	raw, err := o.service.Screen(reqCtx, trimmed)

	event, settleErr := o.settle(ctx, gen, trimmed, raw, err, start)
	if event != nil {
		o.notify(ctx, event)
	}
	return settleErr
}

// begin abandons any in-flight request and enters Submitting.
func (o *Orchestrator) begin(ctx context.Context, text string) (uint64, context.Context, context.CancelFunc) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	reqCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	o.cancel = cancel
	o.phase = Submitting
	o.query = text
	o.errMsg = ""
	o.result = analysis.Empty()
	o.entryID = ""
	o.mu.Unlock()

	o.progress.Reset()
	return gen, reqCtx, cancel
}

// settle applies the outcome of generation gen. Returns the event to
// publish, if any, and the error for the caller.
func (o *Orchestrator) settle(ctx context.Context, gen uint64, query string, raw any, reqErr error, start time.Time) (*adapter.QueryCompletedEvent, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		o.metrics.IncQuerySuperseded()
		o.logger.Debug("stale response discarded", map[string]any{
			"generation": gen,
		})
		return nil, ErrSuperseded
	}
	o.cancel = nil
	o.mu.Unlock()

	settled := o.now()
	elapsed := settled.Sub(start)

	if reqErr != nil {
		terr, kind := classify(reqErr)
		return o.fail(query, analysis.Empty(), terr, kind, settled, elapsed)
	}

	result := analysis.Normalize(raw)
	o.metrics.IncResultKind(result.Kind().String())
	if result.Kind() == analysis.KindText {
		o.logger.Warn("response degraded to text", map[string]any{
			"generation": gen,
		})
	}

	if msg := result.ErrorMessage(); msg != "" {
		return o.fail(query, result, &TransportError{Message: msg}, kindPayloadError, settled, elapsed)
	}

	stages := result.Stages()
	o.progress.Start(stages)

	entry := history.NewEntry(query, result, settled)
	o.history.Push(ctx, entry)

	o.mu.Lock()
	o.phase = Succeeded
	o.result = result
	o.entryID = entry.ID
	o.mu.Unlock()

	o.metrics.IncQuerySucceeded()
	o.logger.Info("query succeeded", map[string]any{
		"entry_id":    entry.ID,
		"kind":        result.Kind().String(),
		"stages":      len(stages),
		"duration_ms": elapsed.Milliseconds(),
	})

	return adapter.NewQueryCompletedEvent(o.session, entry.ID, query, result, "", settled, elapsed), nil
}

func (o *Orchestrator) fail(query string, result analysis.Result, terr *TransportError, kind string, settled time.Time, elapsed time.Duration) (*adapter.QueryCompletedEvent, error) {
	o.mu.Lock()
	o.phase = Failed
	o.errMsg = terr.Message
	o.result = analysis.Empty()
	o.mu.Unlock()

	o.metrics.IncQueryFailed(kind)
	fields := map[string]any{
		"kind":        kind,
		"message":     terr.Message,
		"duration_ms": elapsed.Milliseconds(),
	}
	if terr.Status != 0 {
		fields["status"] = terr.Status
	}
	if terr.Err != nil {
		fields["error"] = terr.Err.Error()
	}
	o.logger.Warn("query failed", fields)

	return adapter.NewQueryCompletedEvent(o.session, "", query, result, terr.Message, settled, elapsed), terr
}

// notify publishes best-effort; failures are logged and counted.
func (o *Orchestrator) notify(ctx context.Context, event *adapter.QueryCompletedEvent) {
	if o.adapter == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyTimeout)
	defer cancel()

	if err := o.adapter.Publish(pubCtx, event); err != nil {
		o.metrics.IncNotifyFailure()
		o.logger.Warn("query_completed publish failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	o.metrics.IncNotifySuccess()
}

// Recall displays a stored entry without any network request. Any
// in-flight request is abandoned and the live progress run is reset.
func (o *Orchestrator) Recall(entry history.Entry) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	o.phase = Idle
	o.query = entry.Query
	o.errMsg = ""
	o.result = entry.Result
	o.entryID = entry.ID
	o.mu.Unlock()

	o.progress.Reset()
}

// RecallID recalls the history entry with the given id.
func (o *Orchestrator) RecallID(id string) bool {
	entry, ok := o.history.Find(id)
	if !ok {
		return false
	}
	o.Recall(entry)
	return true
}

// SetQuery replaces the current input text.
func (o *Orchestrator) SetQuery(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.query = text
}

// Dismiss acknowledges a settled outcome: Succeeded or Failed → Idle, and
// the error message is cleared. The displayed result is kept.
func (o *Orchestrator) Dismiss() {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == Succeeded || o.phase == Failed {
		o.phase = Idle
	}
	if o.phase != Submitting {
		o.errMsg = ""
	}
}

// LoadHistory reads the persisted history.
func (o *Orchestrator) LoadHistory(ctx context.Context) history.Log {
	return o.history.Load(ctx)
}

// History returns the in-memory history, most recent first.
func (o *Orchestrator) History() history.Log {
	return o.history.Entries()
}

// ClearHistory empties the history immediately.
func (o *Orchestrator) ClearHistory(ctx context.Context) history.Log {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	cleared := o.history.Clear(ctx)
	o.logger.Info("history cleared", nil)
	return cleared
}

// Snapshot returns the current presentation state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Phase:      o.phase,
		Query:      o.query,
		Error:      o.errMsg,
		Result:     o.result,
		EntryID:    o.entryID,
		Generation: o.gen,
	}
}

// Progress returns the live progress state.
func (o *Orchestrator) Progress() progress.Snapshot {
	return o.progress.Current()
}

// ProgressRun returns the live progress run, or nil.
func (o *Orchestrator) ProgressRun() *progress.Run {
	return o.progress.Live()
}
