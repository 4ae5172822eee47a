package render

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/history"
)

// noData is printed for the empty result in table mode.
const noData = "(no data)"

// HistoryRow is the list form of one history entry.
type HistoryRow struct {
	ID        string `json:"id" yaml:"id"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Ticker    string `json:"ticker" yaml:"ticker"`
	Kind      string `json:"kind" yaml:"kind"`
	Query     string `json:"query" yaml:"query"`
}

// HistoryRows converts a log to its list form, preserving order.
func HistoryRows(entries history.Log) []HistoryRow {
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Ticker:    e.Result.Ticker(),
			Kind:      e.Result.Kind().String(),
			Query:     e.Query,
		})
	}
	return rows
}

// EntryView is the detail form of one history entry.
type EntryView struct {
	ID        string `json:"id" yaml:"id"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Query     string `json:"query" yaml:"query"`
	Kind      string `json:"kind" yaml:"kind"`
	Result    any    `json:"result" yaml:"result"`
}

// RenderResult writes a canonical result. JSON and YAML carry the
// canonical payload unchanged; table mode prints a per-ticker summary.
func (r *Renderer) RenderResult(res analysis.Result) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(res)
	case FormatYAML:
		return r.renderYAML(resultValue(res))
	case FormatTable:
		return r.resultTable(res)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderHistory writes the history log, most recent first.
func (r *Renderer) RenderHistory(entries history.Log) error {
	if r.format != FormatTable {
		return r.Render(HistoryRows(entries))
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "(no history)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTICKER\tKIND\tQUERY")
	for _, row := range HistoryRows(entries) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.ID, row.Timestamp, row.Ticker, row.Kind, truncate(row.Query, 60))
	}
	return w.Flush()
}

// RenderEntry writes one history entry with its full result.
func (r *Renderer) RenderEntry(e history.Entry) error {
	if r.format != FormatTable {
		return r.Render(EntryView{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Query:     e.Query,
			Kind:      e.Result.Kind().String(),
			Result:    resultValue(e.Result),
		})
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", e.ID)
	fmt.Fprintf(w, "time:\t%s\n", e.Timestamp)
	fmt.Fprintf(w, "query:\t%s\n", e.Query)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(r.out)
	return r.resultTable(e.Result)
}

func (r *Renderer) resultTable(res analysis.Result) error {
	switch res.Kind() {
	case analysis.KindEmpty:
		fmt.Fprintln(r.out, noData)
		return nil
	case analysis.KindText:
		fmt.Fprintln(r.out, res.Text())
		return nil
	}

	tickers := res.Tickers()
	if len(tickers) == 0 {
		// Structured but not a screener payload: show top-level fields.
		if obj := res.Object(); obj != nil {
			return r.renderTable(obj)
		}
		fmt.Fprintln(r.out, res.Pretty())
		return nil
	}

	if q := res.ScreenQuery(); q != analysis.Unknown {
		fmt.Fprintf(r.out, "%s %s\n\n", r.heading("Query:"), q)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tCOMPANY\tSECTOR\tMARKET CAP\tTRAILING PE\tFORWARD PE\tDIV YIELD\t52W RANGE")
	for _, t := range tickers {
		if t.Error != "" {
			fmt.Fprintf(w, "%s\terror: %s\t\t\t\t\t\t\n", t.Ticker, t.Error)
			continue
		}
		v := t.Valuation
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s - %s\n",
			t.Ticker, t.Company.Name, t.Company.Sector,
			v.MarketCap, v.TrailingPE, v.ForwardPE, v.DividendYield, v.Low52w, v.High52w)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, t := range tickers {
		if len(t.News) == 0 {
			continue
		}
		fmt.Fprintf(r.out, "\n%s\n", r.heading("News: "+t.Ticker))
		for _, n := range t.News {
			if n.Link != "" {
				fmt.Fprintf(r.out, "  - %s (%s)\n", n.Title, n.Link)
			} else {
				fmt.Fprintf(r.out, "  - %s\n", n.Title)
			}
		}
	}

	if s := res.Summary(); s != analysis.Unknown {
		fmt.Fprintf(r.out, "\n%s\n%s\n", r.heading("Summary"), s)
	}
	if d := res.Disclaimer(); d != analysis.Unknown {
		fmt.Fprintf(r.out, "\n%s\n", d)
	}
	return nil
}

// resultValue returns the plain value of a result for YAML and views.
func resultValue(res analysis.Result) any {
	switch res.Kind() {
	case analysis.KindStructured:
		return res.Value()
	case analysis.KindText:
		return res.Text()
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
