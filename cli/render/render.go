// Package render prints command results as json, yaml or an aligned
// table.
//
// When --format is not given, a terminal gets a table and anything else
// gets json. --no-color only strips styling from table output; the TUI
// styles itself.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
	styles  *lipgloss.Renderer
}

// NewRenderer creates a renderer from CLI context.
// Applies the format selection rules above.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// Apply default format based on TTY detection
	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return NewRendererWithWriter(format, c.Bool("no-color"), c.App.Writer), nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
		styles:  lipgloss.NewRenderer(out),
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format { return r.format }

// heading styles a section title for table output. Plain when color is
// disabled or the writer is not a color terminal.
func (r *Renderer) heading(s string) string {
	if r.noColor {
		return s
	}
	return r.styles.NewStyle().Bold(true).Render(s)
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// column is one labelled cell of a table row.
type column struct {
	name  string
	value string
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := deref(reflect.ValueOf(data))
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		cols, ok := columns(v)
		if !ok {
			fmt.Fprintf(w, "%v\n", data)
			return nil
		}
		for _, c := range cols {
			fmt.Fprintf(w, "%s:\t%s\n", c.name, c.value)
		}
		return nil
	}

	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return nil
	}
	// The first row fixes the header; later map rows are aligned to it.
	head, _ := columns(deref(v.Index(0)))
	names := make([]string, len(head))
	for i, c := range head {
		names[i] = c.name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))
	for i := range v.Len() {
		cols, _ := columns(deref(v.Index(i)))
		byName := make(map[string]string, len(cols))
		for _, c := range cols {
			byName[c.name] = c.value
		}
		row := make([]string, len(names))
		for j, n := range names {
			row[j] = byName[n]
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return nil
}

// columns flattens a struct (exported fields, json names) or a map
// (sorted keys) into labelled cells.
func columns(v reflect.Value) ([]column, bool) {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		var out []column
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			out = append(out, column{name: fieldName(f), value: cell(v.Field(i))})
		}
		return out, true
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([]column, len(keys))
		for i, k := range keys {
			out[i] = column{name: fmt.Sprint(k.Interface()), value: cell(v.MapIndex(k))}
		}
		return out, true
	default:
		return nil, false
	}
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

// deref follows pointers and interfaces to the concrete value.
func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// cell renders one value. Nested collections are summarized by size.
func cell(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}
	if ts, ok := v.Interface().(time.Time); ok {
		return ts.Format(time.RFC3339)
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
