// Package reader reads exported history back out of the archive for the
// read-only CLI commands.
//
// Readers never mutate the archive; a missing or empty dataset reads as
// zero entries.
package reader

import (
	"context"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/archive"
	"github.com/pithecene-io/screener/history"
)

// ArchivedEntry is the list form of one archived history entry.
type ArchivedEntry struct {
	ID        string   `json:"id" yaml:"id"`
	Day       string   `json:"day" yaml:"day"`
	Timestamp string   `json:"timestamp" yaml:"timestamp"`
	Kind      string   `json:"kind" yaml:"kind"`
	Tickers   []string `json:"tickers,omitempty" yaml:"tickers,omitempty"`
	Query     string   `json:"query" yaml:"query"`
	SessionID string   `json:"session_id,omitempty" yaml:"session_id,omitempty"`

	result analysis.Result
}

// Entry rebuilds the history entry the record was exported from.
func (a ArchivedEntry) Entry() history.Entry {
	return history.Entry{
		ID:        a.ID,
		Query:     a.Query,
		Result:    a.result,
		Timestamp: a.Timestamp,
	}
}

// ListOptions filters ReadArchive.
type ListOptions struct {
	// Day restricts results to one partition (YYYY-MM-DD). Empty reads all.
	Day string
	// Ticker keeps entries that mention the symbol (case-insensitive).
	Ticker string
	// Limit caps the number of entries returned (0 = no limit).
	Limit int
}

// ReadArchive returns archived entries, most recent first. Records that
// fail to parse are skipped and counted in skipped.
func ReadArchive(ctx context.Context, ds lode.Dataset, opts ListOptions) (entries []ArchivedEntry, skipped int, err error) {
	records, err := archive.ReadDay(ctx, ds, opts.Day)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		e, perr := ParseArchiveRecord(rec)
		if perr != nil {
			skipped++
			continue
		}
		// Re-exports append snapshots; the latest copy of an entry wins.
		if seen[e.ID] {
			entries = slices.DeleteFunc(entries, func(x ArchivedEntry) bool { return x.ID == e.ID })
		}
		seen[e.ID] = true
		if opts.Ticker != "" && !hasTicker(e.Tickers, opts.Ticker) {
			continue
		}
		entries = append(entries, *e)
	}

	slices.SortStableFunc(entries, func(a, b ArchivedEntry) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, skipped, nil
}

// Days returns the distinct partitions present in entries, ascending.
func Days(entries []ArchivedEntry) []string {
	var days []string
	for _, e := range entries {
		if !slices.Contains(days, e.Day) {
			days = append(days, e.Day)
		}
	}
	slices.Sort(days)
	return days
}

func hasTicker(tickers []string, want string) bool {
	for _, t := range tickers {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
