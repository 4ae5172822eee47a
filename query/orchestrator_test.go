package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/screener/adapter"
	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/client"
	"github.com/pithecene-io/screener/history"
	"github.com/pithecene-io/screener/kv"
	"github.com/pithecene-io/screener/metrics"
	"github.com/pithecene-io/screener/progress"
	"github.com/pithecene-io/screener/types"
)

const aaplResponse = `{"analysis": "{\"screen_query\":\"How is AAPL doing?\",\"results\":[{\"ticker\":\"AAPL\",\"key_information\":{\"Company Name\":\"Apple Inc.\"}}],\"feedback_steps\":[\"Fetching quote\",{\"stage\":\"Scoring\",\"detail\":\"PE bands\"}]}"}`

// fakeService answers Screen calls with respond and records queries.
type fakeService struct {
	mu      sync.Mutex
	calls   []string
	respond func(ctx context.Context, query string) (any, error)
}

func (f *fakeService) Screen(ctx context.Context, query string) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	return f.respond(ctx, query)
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func respondJSON(body string) func(context.Context, string) (any, error) {
	return func(context.Context, string) (any, error) {
		return body, nil
	}
}

// recordingAdapter captures published events.
type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.QueryCompletedEvent
	err    error
}

func (r *recordingAdapter) Publish(_ context.Context, ev *adapter.QueryCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingAdapter) Close() error { return nil }

type harness struct {
	orch    *Orchestrator
	service *fakeService
	store   *history.Store
	sched   *progress.ManualScheduler
	metrics *metrics.Collector
	adapter *recordingAdapter
}

func newHarness(t *testing.T, svc Service) *harness {
	t.Helper()
	m := metrics.NewCollector("memory", "recording", "sess-test")
	store, err := history.New(kv.NewMemory(), history.WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	sched := progress.NewManualScheduler()
	rec := &recordingAdapter{}
	orch, err := New(Config{
		Service:  svc,
		History:  store,
		Progress: progress.New(progress.Config{Scheduler: sched}),
		Adapter:  rec,
		Session:  &types.SessionMeta{SessionID: "sess-test"},
		Metrics:  m,
		Now:      func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{orch: orch, store: store, sched: sched, metrics: m, adapter: rec}
	if fs, ok := svc.(*fakeService); ok {
		h.service = fs
	}
	return h
}

func drainStates(run *progress.Run) []int {
	var out []int
	for {
		select {
		case u, ok := <-run.Updates():
			if !ok {
				return out
			}
			out = append(out, u.State.ActiveIndex)
		default:
			return out
		}
	}
}

func TestSubmit_AAPLScenario(t *testing.T) {
	svc := &fakeService{respond: func(context.Context, string) (any, error) {
		return aaplResponse, nil
	}}
	h := newHarness(t, svc)

	if err := h.orch.Submit(t.Context(), "AAPL summary"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := h.orch.Snapshot()
	if snap.Phase != Succeeded || snap.Loading() {
		t.Errorf("phase = %v", snap.Phase)
	}
	if snap.Result.Ticker() != "AAPL" {
		t.Errorf("ticker = %q, want AAPL", snap.Result.Ticker())
	}
	if snap.Error != "" {
		t.Errorf("error = %q", snap.Error)
	}

	run := h.orch.ProgressRun()
	if run == nil {
		t.Fatal("expected a live progress run")
	}
	if got := drainStates(run); len(got) != 1 || got[0] != 0 {
		t.Errorf("initial progress = %v, want [0]", got)
	}
	h.sched.Advance(800 * time.Millisecond)
	if got := drainStates(run); len(got) != 1 || got[0] != 1 {
		t.Errorf("progress at 800ms = %v, want [1]", got)
	}
	h.sched.Advance(800 * time.Millisecond)
	if got := drainStates(run); len(got) != 1 || got[0] != 2 {
		t.Errorf("progress at 1600ms = %v, want [2]", got)
	}
	if p := h.orch.Progress(); p.State != (progress.State{ActiveIndex: 2, Total: 2}) || p.Stages[1].Detail != "PE bands" {
		t.Errorf("Progress() = %+v", p)
	}

	h.sched.Advance(2 * time.Second)
	select {
	case u, ok := <-run.Updates():
		if !ok || !u.AutoHide {
			t.Errorf("update at 3600ms = %+v (open=%v), want auto-hide", u, ok)
		}
	default:
		t.Error("no auto-hide update at 3600ms")
	}
	if _, ok := <-run.Updates(); ok {
		t.Error("run should close after auto-hide")
	}

	entries := h.orch.History()
	if len(entries) != 1 {
		t.Fatalf("history len = %d, want 1", len(entries))
	}
	if entries[0].Query != "AAPL summary" || entries[0].ID != snap.EntryID {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].Timestamp != "2026-10-16T12:00:00.000Z" {
		t.Errorf("timestamp = %q", entries[0].Timestamp)
	}

	if len(h.adapter.events) != 1 || h.adapter.events[0].Outcome != adapter.OutcomeSuccess || h.adapter.events[0].EntryID != snap.EntryID {
		t.Errorf("events = %+v", h.adapter.events)
	}
	ms := h.metrics.Snapshot()
	if ms.QueriesSubmitted != 1 || ms.QueriesSucceeded != 1 || ms.ResultsStructured != 1 || ms.HistoryWriteSuccess != 1 || ms.NotifySuccess != 1 {
		t.Errorf("metrics = %+v", ms)
	}
}

func TestSubmit_EmptyQuery(t *testing.T) {
	svc := &fakeService{respond: respondJSON(`{}`)}
	h := newHarness(t, svc)

	for _, q := range []string{"", "   ", "\n\t"} {
		err := h.orch.Submit(t.Context(), q)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Submit(%q) err = %v, want *ValidationError", q, err)
		}

		snap := h.orch.Snapshot()
		if snap.Phase != Idle {
			t.Errorf("phase = %v, want idle", snap.Phase)
		}
		if snap.Error != EmptyQueryMessage {
			t.Errorf("error = %q", snap.Error)
		}
	}

	if svc.callCount() != 0 {
		t.Errorf("service called %d times", svc.callCount())
	}
	if len(h.orch.History()) != 0 {
		t.Error("history should be untouched")
	}
	if h.metrics.Snapshot().QueriesRejected != 3 {
		t.Errorf("QueriesRejected = %d", h.metrics.Snapshot().QueriesRejected)
	}
}

func TestSubmit_EmptyQueryDuringSuccessKeepsPhase(t *testing.T) {
	h := newHarness(t, &fakeService{respond: respondJSON(`{"ticker":"MSFT"}`)})
	if err := h.orch.Submit(t.Context(), "MSFT"); err != nil {
		t.Fatal(err)
	}
	_ = h.orch.Submit(t.Context(), " ")

	snap := h.orch.Snapshot()
	if snap.Phase != Succeeded || snap.Result.Ticker() != "MSFT" {
		t.Errorf("validation failure must not transition: %v %q", snap.Phase, snap.Result.Ticker())
	}
}

func TestSubmit_HTTP500WithDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"rate limited"}`)
	}))
	defer ts.Close()

	c, err := client.New(client.Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, c)

	err = h.orch.Submit(t.Context(), "AAPL")
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if tErr.Status != 500 || tErr.Message != "rate limited" {
		t.Errorf("TransportError = %+v", tErr)
	}

	snap := h.orch.Snapshot()
	if snap.Phase != Failed || snap.Error != "rate limited" || !snap.Result.IsEmpty() {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(h.orch.History()) != 0 {
		t.Error("failed query must not be recorded")
	}
	if h.metrics.Snapshot().FailuresByKind[kindHTTPStatus] != 1 {
		t.Errorf("metrics = %+v", h.metrics.Snapshot())
	}
	if len(h.adapter.events) != 1 || h.adapter.events[0].Outcome != adapter.OutcomeFailed {
		t.Errorf("events = %+v", h.adapter.events)
	}
}

func TestSubmit_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		status  int
		kind    string
		payload string
	}{
		{"status without detail", &client.StatusError{Code: 503}, "HTTP 503", 503, kindHTTPStatus, ""},
		{"network", errors.New("dial tcp: connection refused"), UnreachableMessage, 0, kindNetwork, ""},
		{"timeout", context.DeadlineExceeded, "the analysis service did not respond in time", 0, kindTimeout, ""},
		{"payload error", nil, "No ticker symbol detected in the query.", 0, kindPayloadError, `{"analysis":"{\"error\":\"No ticker symbol detected in the query.\"}"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeService{respond: func(context.Context, string) (any, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return tt.payload, nil
			}})

			err := h.orch.Submit(t.Context(), "what about it")
			var tErr *TransportError
			if !errors.As(err, &tErr) {
				t.Fatalf("err = %v, want *TransportError", err)
			}
			if tErr.Message != tt.want || tErr.Status != tt.status {
				t.Errorf("TransportError = %+v", tErr)
			}
			snap := h.orch.Snapshot()
			if snap.Phase != Failed || snap.Error != tt.want {
				t.Errorf("snapshot = %v %q", snap.Phase, snap.Error)
			}
			if len(h.orch.History()) != 0 {
				t.Error("failed query must not be recorded")
			}
			if h.orch.ProgressRun() != nil {
				t.Error("failed query must not start progress")
			}
			if h.metrics.Snapshot().FailuresByKind[tt.kind] != 1 {
				t.Errorf("FailuresByKind = %v", h.metrics.Snapshot().FailuresByKind)
			}
		})
	}
}

func TestSubmit_StaleResponseDiscarded(t *testing.T) {
	started := make(chan struct{}, 2)
	releaseFirst := make(chan struct{})
	svc := &fakeService{respond: func(ctx context.Context, q string) (any, error) {
		started <- struct{}{}
		if q == "first" {
			// Ignore cancellation to simulate a late response.
			<-releaseFirst
			return `{"ticker":"OLD"}`, nil
		}
		return `{"ticker":"NEW"}`, nil
	}}
	h := newHarness(t, svc)

	firstErr := make(chan error, 1)
	go func() { firstErr <- h.orch.Submit(t.Context(), "first") }()
	<-started

	if snap := h.orch.Snapshot(); snap.Phase != Submitting || !snap.Loading() {
		t.Errorf("phase while in flight = %v", snap.Phase)
	}

	if err := h.orch.Submit(t.Context(), "second"); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	close(releaseFirst)

	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first submit err = %v, want ErrSuperseded", err)
	}

	snap := h.orch.Snapshot()
	if snap.Phase != Succeeded || snap.Result.Ticker() != "NEW" || snap.Query != "second" {
		t.Errorf("snapshot = %v %q %q", snap.Phase, snap.Result.Ticker(), snap.Query)
	}
	entries := h.orch.History()
	if len(entries) != 1 || entries[0].Query != "second" {
		t.Errorf("history = %+v", entries)
	}
	if h.metrics.Snapshot().QueriesSuperseded != 1 {
		t.Errorf("QueriesSuperseded = %d", h.metrics.Snapshot().QueriesSuperseded)
	}
}

func TestSubmit_NewSubmissionCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	svc := &fakeService{respond: func(ctx context.Context, q string) (any, error) {
		if q == "slow" {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return `{"ticker":"FAST"}`, nil
	}}
	h := newHarness(t, svc)

	slowErr := make(chan error, 1)
	go func() { slowErr <- h.orch.Submit(t.Context(), "slow") }()
	<-started

	if err := h.orch.Submit(t.Context(), "fast"); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-slowErr:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("slow submit err = %v, want ErrSuperseded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request was not canceled")
	}
	if snap := h.orch.Snapshot(); snap.Phase != Succeeded || snap.Error != "" {
		t.Errorf("snapshot = %v %q", snap.Phase, snap.Error)
	}
}

func TestSubmit_RestartResetsProgress(t *testing.T) {
	svc := &fakeService{respond: respondJSON(`{"ticker":"AAPL","feedback_steps":["a","b","c"]}`)}
	h := newHarness(t, svc)

	if err := h.orch.Submit(t.Context(), "one"); err != nil {
		t.Fatal(err)
	}
	first := h.orch.ProgressRun()
	h.sched.Advance(800 * time.Millisecond)

	if err := h.orch.Submit(t.Context(), "two"); err != nil {
		t.Fatal(err)
	}
	if !first.Done() {
		t.Error("previous run should be canceled")
	}
	second := h.orch.ProgressRun()
	if second == nil || second.ID() == first.ID() {
		t.Fatal("expected a new run")
	}
	h.sched.Advance(time.Minute)
	for _, idx := range drainStates(first) {
		t.Errorf("stale update %d from previous run", idx)
	}
}

func TestSubmit_TextResultRecorded(t *testing.T) {
	h := newHarness(t, &fakeService{respond: respondJSON(`{"analysis":"Markets are calm today."}`)})

	if err := h.orch.Submit(t.Context(), "mood"); err != nil {
		t.Fatal(err)
	}
	snap := h.orch.Snapshot()
	if snap.Result.Kind() != analysis.KindText || snap.Result.Text() != "Markets are calm today." {
		t.Errorf("result = %v %q", snap.Result.Kind(), snap.Result.Text())
	}
	if len(h.orch.History()) != 1 {
		t.Error("text result should be recorded")
	}
	if h.metrics.Snapshot().ResultsText != 1 {
		t.Errorf("ResultsText = %d", h.metrics.Snapshot().ResultsText)
	}
}

func TestSubmit_NotifyFailureIsBestEffort(t *testing.T) {
	h := newHarness(t, &fakeService{respond: respondJSON(`{"ticker":"AAPL"}`)})
	h.adapter.err = errors.New("webhook down")

	if err := h.orch.Submit(t.Context(), "AAPL"); err != nil {
		t.Fatalf("publish failure must not fail the query: %v", err)
	}
	if h.metrics.Snapshot().NotifyFailure != 1 {
		t.Errorf("NotifyFailure = %d", h.metrics.Snapshot().NotifyFailure)
	}
}

func TestRecall(t *testing.T) {
	svc := &fakeService{respond: respondJSON(`{"ticker":"AAPL","feedback_steps":["a"]}`)}
	h := newHarness(t, svc)
	ctx := t.Context()

	if err := h.orch.Submit(ctx, "AAPL"); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Submit(ctx, "again"); err != nil {
		t.Fatal(err)
	}
	older := h.orch.History()[1]

	h.orch.Recall(older)

	snap := h.orch.Snapshot()
	if snap.Phase != Idle || snap.Query != "AAPL" || snap.EntryID != older.ID || snap.Result.Ticker() != "AAPL" {
		t.Errorf("snapshot = %+v", snap)
	}
	if h.orch.ProgressRun() != nil {
		t.Error("recall should reset progress")
	}
	if svc.callCount() != 2 {
		t.Errorf("recall must not issue a request, calls = %d", svc.callCount())
	}
	if len(h.orch.History()) != 2 {
		t.Error("recall must not change history")
	}

	if !h.orch.RecallID(older.ID) {
		t.Error("RecallID should find the entry")
	}
	if h.orch.RecallID("missing") {
		t.Error("RecallID(missing) should report false")
	}
}

func TestRecall_AbandonsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	svc := &fakeService{respond: func(context.Context, string) (any, error) {
		started <- struct{}{}
		<-release
		return `{"ticker":"LATE"}`, nil
	}}
	h := newHarness(t, svc)

	errCh := make(chan error, 1)
	go func() { errCh <- h.orch.Submit(t.Context(), "late") }()
	<-started

	h.orch.Recall(history.NewEntry("stored", analysis.Normalize(`{"ticker":"KEPT"}`), time.Now()))
	close(release)

	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Errorf("err = %v, want ErrSuperseded", err)
	}
	if snap := h.orch.Snapshot(); snap.Result.Ticker() != "KEPT" || snap.Phase != Idle {
		t.Errorf("late response overwrote recall: %+v", snap)
	}
}

func TestDismissAndSetQuery(t *testing.T) {
	h := newHarness(t, &fakeService{respond: func(context.Context, string) (any, error) {
		return nil, &client.StatusError{Code: 500, Detail: "boom"}
	}})

	_ = h.orch.Submit(t.Context(), "AAPL")
	if h.orch.Snapshot().Phase != Failed {
		t.Fatal("expected Failed")
	}

	h.orch.Dismiss()
	snap := h.orch.Snapshot()
	if snap.Phase != Idle || snap.Error != "" {
		t.Errorf("after Dismiss: %v %q", snap.Phase, snap.Error)
	}

	h.orch.SetQuery("MSFT outlook")
	if h.orch.Snapshot().Query != "MSFT outlook" {
		t.Errorf("query = %q", h.orch.Snapshot().Query)
	}
}

func TestClearHistory(t *testing.T) {
	h := newHarness(t, &fakeService{respond: respondJSON(`{"ticker":"AAPL"}`)})
	ctx := t.Context()
	_ = h.orch.Submit(ctx, "a")
	_ = h.orch.Submit(ctx, "b")

	if got := h.orch.ClearHistory(ctx); len(got) != 0 {
		t.Errorf("ClearHistory returned %d entries", len(got))
	}
	if len(h.orch.History()) != 0 || len(h.orch.LoadHistory(ctx)) != 0 {
		t.Error("history should be empty after clear")
	}
}

func TestNew_Validation(t *testing.T) {
	store, _ := history.New(kv.NewMemory())
	if _, err := New(Config{History: store}); err == nil {
		t.Error("expected error without service")
	}
	if _, err := New(Config{Service: &fakeService{}}); err == nil {
		t.Error("expected error without history")
	}
}

func TestPhase_String(t *testing.T) {
	for p, want := range map[Phase]string{Idle: "idle", Submitting: "submitting", Succeeded: "succeeded", Failed: "failed", Phase(9): "unknown"} {
		if p.String() != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), p.String(), want)
		}
	}
}
