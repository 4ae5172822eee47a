package adapter

import (
	"testing"
	"time"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/types"
)

func TestNewQueryCompletedEvent_Success(t *testing.T) {
	meta := &types.SessionMeta{SessionID: "sess-1"}
	result := analysis.Normalize(`{"results":[{"ticker":"AAPL"},{"ticker":"TSLA"}],"feedback_steps":["a","b"]}`)
	settled := time.Date(2026, 10, 16, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	ev := NewQueryCompletedEvent(meta, "entry-1", "Compare AAPL and TSLA", result, "", settled, 1500*time.Millisecond)

	if ev.EventType != EventType || ev.ContractVersion != types.ContractVersion {
		t.Errorf("envelope = %q %q", ev.EventType, ev.ContractVersion)
	}
	if ev.SessionID != "sess-1" || ev.EntryID != "entry-1" {
		t.Errorf("ids = %q %q", ev.SessionID, ev.EntryID)
	}
	if ev.Outcome != OutcomeSuccess || ev.Error != "" {
		t.Errorf("outcome = %q %q", ev.Outcome, ev.Error)
	}
	if ev.ResultKind != "structured" || ev.StageCount != 2 {
		t.Errorf("result = %q stages=%d", ev.ResultKind, ev.StageCount)
	}
	if len(ev.Tickers) != 2 || ev.Tickers[0] != "AAPL" || ev.Tickers[1] != "TSLA" {
		t.Errorf("tickers = %v", ev.Tickers)
	}
	if ev.Timestamp != "2026-10-16T11:00:00Z" {
		t.Errorf("timestamp = %q", ev.Timestamp)
	}
	if ev.DurationMs != 1500 {
		t.Errorf("duration = %d", ev.DurationMs)
	}
}

func TestNewQueryCompletedEvent_Failure(t *testing.T) {
	ev := NewQueryCompletedEvent(nil, "", "q", analysis.Empty(), "rate limited", time.Now(), 0)

	if ev.Outcome != OutcomeFailed || ev.Error != "rate limited" {
		t.Errorf("outcome = %q %q", ev.Outcome, ev.Error)
	}
	if ev.ResultKind != "empty" || len(ev.Tickers) != 0 || ev.SessionID != "" {
		t.Errorf("event = %+v", ev)
	}
}
