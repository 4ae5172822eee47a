package reader

import (
	"errors"

	"github.com/pithecene-io/screener/analysis"
)

// ParseArchiveRecord converts a lode record (map[string]any) to an
// ArchivedEntry. The result payload is re-read through analysis.FromValue,
// so JSON round-tripped maps and plain text both restore.
func ParseArchiveRecord(record map[string]any) (*ArchivedEntry, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	e := &ArchivedEntry{
		ID:        toString(record["entry_id"]),
		Day:       toString(record["day"]),
		Timestamp: toString(record["timestamp"]),
		Query:     toString(record["query"]),
		SessionID: toString(record["session_id"]),
		Tickers:   toStrings(record["tickers"]),
		result:    analysis.FromValue(record["result"]),
	}
	e.Kind = e.result.Kind().String()

	// The export path always populates these; missing values indicate a
	// malformed or foreign record.
	if e.ID == "" {
		return nil, errors.New("archive record missing required field: entry_id")
	}
	if e.Timestamp == "" {
		return nil, errors.New("archive record missing required field: timestamp")
	}
	if e.Day == "" {
		return nil, errors.New("archive record missing required field: day")
	}

	return e, nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toStrings converts tickers from lode record format.
// Handles both []string (direct) and []any (JSON round-trip).
func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str := toString(item); str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
