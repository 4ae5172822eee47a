// Package analysis normalizes analysis-service responses into a single
// canonical Result consumed by every display surface.
//
// The service envelope is historically unstable: a raw object, a
// JSON-encoded string, an {"analysis": "<json>"} wrapper, or a nested
// data.data wrapper. Normalize accepts all of them and never fails;
// malformed content degrades to plain text or to the empty result.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Unknown is the marker returned by derived field accessors when the
// payload does not carry the field.
const Unknown = "unknown"

// Kind discriminates the canonical result shapes.
type Kind int

const (
	// KindEmpty means the service returned no data.
	KindEmpty Kind = iota
	// KindStructured is a decoded JSON object or array.
	KindStructured
	// KindText is a display string that is not JSON.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindStructured:
		return "structured"
	case KindText:
		return "text"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Result is the canonical analysis result.
// The zero value is the empty result. Results are immutable values.
type Result struct {
	kind  Kind
	value any // map[string]any or []any when structured
	text  string
}

// Empty returns the "no data" result.
func Empty() Result { return Result{} }

// FromValue classifies an already-decoded value without parsing strings.
// Used when restoring persisted results, whose strings were already
// normalized and must stay text.
func FromValue(v any) Result {
	switch tv := v.(type) {
	case nil:
		return Empty()
	case string:
		if strings.TrimSpace(tv) == "" {
			return Empty()
		}
		return Result{kind: KindText, text: tv}
	case map[string]any:
		if len(tv) == 0 {
			return Empty()
		}
		return Result{kind: KindStructured, value: tv}
	case []any:
		if len(tv) == 0 {
			return Empty()
		}
		return Result{kind: KindStructured, value: tv}
	case map[any]any:
		return FromValue(stringKeys(tv))
	default:
		return Result{kind: KindText, text: scalarString(tv)}
	}
}

// Kind returns the result shape.
func (r Result) Kind() Kind { return r.kind }

// IsEmpty reports whether the result carries no data.
func (r Result) IsEmpty() bool { return r.kind == KindEmpty }

// Text returns the display string of a text result, or "".
func (r Result) Text() string {
	if r.kind != KindText {
		return ""
	}
	return r.text
}

// Value returns the decoded object or array of a structured result, or nil.
func (r Result) Value() any {
	if r.kind != KindStructured {
		return nil
	}
	return r.value
}

// Object returns the top-level object, or nil when the result is not an object.
func (r Result) Object() map[string]any {
	m, _ := r.Value().(map[string]any)
	return m
}

// Field walks nested objects by key. Missing keys, null values and
// non-object intermediates all report false.
func (r Result) Field(path ...string) (any, bool) {
	return walk(r.Value(), path...)
}

// String returns the field at path formatted for display, or Unknown.
func (r Result) String(path ...string) string {
	v, ok := r.Field(path...)
	if !ok {
		return Unknown
	}
	return displayString(v)
}

// ErrorMessage returns a top-level "error" string carried by the payload.
// The service reports some failures (e.g. no ticker detected) inside a
// successful HTTP response.
func (r Result) ErrorMessage() string {
	v, ok := r.Field("error")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// JSON returns the serialized form used for copy and export:
// the object/array, a JSON string for text, or null.
func (r Result) JSON() ([]byte, error) {
	return json.Marshal(r.raw())
}

// Pretty returns an indented export form. Text results are returned as-is
// and the empty result as "".
func (r Result) Pretty() string {
	switch r.kind {
	case KindText:
		return r.text
	case KindStructured:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.value); err != nil {
			return fmt.Sprint(r.value)
		}
		return strings.TrimRight(buf.String(), "\n")
	default:
		return ""
	}
}

func (r Result) raw() any {
	switch r.kind {
	case KindText:
		return r.text
	case KindStructured:
		return r.value
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.raw())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = FromValue(v)
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (r Result) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(r.raw())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (r *Result) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*r = FromValue(normalizeDecoded(v))
	return nil
}

var (
	_ json.Marshaler        = Result{}
	_ json.Unmarshaler      = (*Result)(nil)
	_ msgpack.CustomEncoder = Result{}
	_ msgpack.CustomDecoder = (*Result)(nil)
)

func walk(v any, path ...string) (any, bool) {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, present := m[key]
		if !present || next == nil {
			return nil, false
		}
		cur = next
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// unavailableSuffix is how the service marks a field it could not fetch.
const unavailableSuffix = "was not available from the data source."

func displayString(v any) string {
	switch tv := v.(type) {
	case nil:
		return Unknown
	case string:
		s := strings.TrimSpace(tv)
		if s == "" || strings.HasSuffix(s, unavailableSuffix) {
			return Unknown
		}
		return s
	case map[string]any, []any:
		return Unknown
	default:
		return scalarString(tv)
	}
}

func scalarString(v any) string {
	switch tv := v.(type) {
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(tv)
	default:
		return fmt.Sprint(tv)
	}
}

// normalizeDecoded converts msgpack-decoded containers to the shapes
// encoding/json produces so both codecs restore identical results.
func normalizeDecoded(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = normalizeDecoded(val)
		}
		return out
	case map[any]any:
		return normalizeDecoded(stringKeys(tv))
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = normalizeDecoded(val)
		}
		return out
	case int8:
		return float64(tv)
	case int16:
		return float64(tv)
	case int32:
		return float64(tv)
	case int64:
		return float64(tv)
	case int:
		return float64(tv)
	case uint8:
		return float64(tv)
	case uint16:
		return float64(tv)
	case uint32:
		return float64(tv)
	case uint64:
		return float64(tv)
	case float32:
		return float64(tv)
	default:
		return v
	}
}

func stringKeys(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = v
	}
	return out
}
