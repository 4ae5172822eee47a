// Package history keeps the bounded, persisted log of past queries.
//
// The log is most-recent-first, capped at MaxEntries, and stored as a
// single blob under a versioned key. Persistence is best-effort: storage
// failures are logged and counted, never returned, and the in-memory log
// stays authoritative for the session.
package history

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/screener/analysis"
)

// TimestampLayout is RFC 3339 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is one past query and its canonical result. Immutable once created.
type Entry struct {
	ID        string          `json:"id" msgpack:"id"`
	Query     string          `json:"query" msgpack:"query"`
	Result    analysis.Result `json:"result" msgpack:"result"`
	Timestamp string          `json:"timestamp" msgpack:"timestamp"`
}

// NewEntry creates an entry stamped at now (UTC). IDs are UUIDv7, so they
// sort in creation order.
func NewEntry(query string, result analysis.Result, now time.Time) Entry {
	return Entry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Query:     strings.TrimSpace(query),
		Result:    result,
		Timestamp: now.UTC().Format(TimestampLayout),
	}
}

// Time parses the entry timestamp.
func (e Entry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// Day returns the UTC calendar day of the entry (YYYY-MM-DD), or "" when
// the timestamp is unparseable.
func (e Entry) Day() string {
	t, err := e.Time()
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// Log is an ordered history, most recent first.
type Log []Entry

// Find returns the entry with the given id.
func (l Log) Find(id string) (Entry, bool) {
	for _, e := range l {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func (l Log) clone() Log {
	out := make(Log, len(l))
	copy(out, l)
	return out
}
