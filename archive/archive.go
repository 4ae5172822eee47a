// Package archive exports the query history into a lode dataset.
//
// Each history entry becomes one JSONL record under the Hive partition
// day=YYYY-MM-DD (UTC), one snapshot per exported day. The dataset is
// append-only: exporting the same log twice writes two snapshots.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/history"
	"github.com/pithecene-io/screener/log"
	"github.com/pithecene-io/screener/metrics"
	"github.com/pithecene-io/screener/types"
)

// DefaultDataset is the lode dataset ID used when none is configured.
const DefaultDataset = "screener"

// RecordKindEntry marks an exported history entry.
const RecordKindEntry = "history_entry"

// Config configures an Archive.
type Config struct {
	// Dataset is the lode dataset ID (default "screener").
	Dataset string
	// SessionID is stamped on every record (optional).
	SessionID string
	Logger    *log.Logger
	Metrics   *metrics.Collector
}

// Summary reports what one Export wrote.
type Summary struct {
	Entries int
	// Days lists the partitions written, ascending.
	Days []string
}

// Archive writes history entries to a day-partitioned lode dataset.
type Archive struct {
	dataset lode.Dataset
	config  Config
	logger  *log.Logger
}

// New creates an Archive over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func New(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := OpenDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Archive{
		dataset: ds,
		config:  cfg,
		logger:  cfg.Logger.Named("archive"),
	}, nil
}

// NewFS creates an Archive with filesystem storage rooted at root,
// creating the directory if needed.
func NewFS(cfg Config, root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("archive: filesystem root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return New(cfg, lode.NewFSFactory(root))
}

// OpenDataset opens the archive dataset for reading or writing. Readers
// must use the same layout and codec as the export path.
func OpenDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Dataset returns the dataset ID.
func (a *Archive) Dataset() string { return a.config.Dataset }

// Export writes every entry of log, grouped by day. Days are written in
// ascending order; entries keep their log order within a day. A failed
// day stops the export and the error reports how far it got.
func (a *Archive) Export(ctx context.Context, entries history.Log) (Summary, error) {
	var summary Summary
	if len(entries) == 0 {
		return summary, nil
	}

	byDay := make(map[string][]any)
	for _, e := range entries {
		day := e.Day()
		byDay[day] = append(byDay[day], a.record(e, day))
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	slices.Sort(days)

	for _, day := range days {
		records := byDay[day]
		if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
			a.config.Metrics.IncArchiveWriteFailure()
			a.logger.Error("archive write failed", map[string]any{
				"day":   day,
				"error": err.Error(),
			})
			return summary, WrapWriteError(err, a.partitionPath(day))
		}
		a.config.Metrics.IncArchiveWriteSuccess()
		summary.Entries += len(records)
		summary.Days = append(summary.Days, day)
	}

	a.logger.Info("history exported", map[string]any{
		"dataset": a.config.Dataset,
		"entries": summary.Entries,
		"days":    len(summary.Days),
	})
	return summary, nil
}

// Close releases archive resources.
func (a *Archive) Close() error {
	// Dataset doesn't require explicit close in current lode API
	return nil
}

func (a *Archive) record(e history.Entry, day string) map[string]any {
	rec := map[string]any{
		"record_kind":      RecordKindEntry,
		"contract_version": types.ContractVersion,
		"day":              day,
		"entry_id":         e.ID,
		"query":            e.Query,
		"timestamp":        e.Timestamp,
		"result_kind":      e.Result.Kind().String(),
		"result":           resultValue(e.Result),
	}
	if tickers := e.Result.Tickers(); len(tickers) > 0 {
		symbols := make([]any, 0, len(tickers))
		for _, t := range tickers {
			symbols = append(symbols, t.Ticker)
		}
		rec["tickers"] = symbols
	}
	if a.config.SessionID != "" {
		rec["session_id"] = a.config.SessionID
	}
	return rec
}

func (a *Archive) partitionPath(day string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s", a.config.Dataset, day)
}

// resultValue returns a codec-neutral form of r.
func resultValue(r analysis.Result) any {
	switch r.Kind() {
	case analysis.KindStructured:
		return r.Value()
	case analysis.KindText:
		return r.Text()
	default:
		return nil
	}
}

// ReadDay returns the exported entry records of one day, oldest snapshot
// first. An empty day matches every partition.
func ReadDay(ctx context.Context, ds lode.Dataset, day string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotHasDay(snap, day) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		// Manifest paths are a coarse filter; record fields are authoritative.
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != RecordKindEntry {
				continue
			}
			if day != "" && rec["day"] != day {
				continue
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func snapshotHasDay(snap *lode.DatasetSnapshot, day string) bool {
	if day == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, "day", day) {
			return true
		}
	}
	return false
}

// matchesPartitionValue reports whether a Hive path has the exact
// key=value segment.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
