package analysis

import (
	"encoding/json"
	"strings"
)

// maxLiftDepth bounds repeated decoding of JSON strings that encode
// JSON strings.
const maxLiftDepth = 4

// Rule is one envelope extraction rule. Select reports false when the
// rule does not apply to the lifted payload.
type Rule struct {
	Name   string
	Select func(payload any) (any, bool)
}

// Rules is the ordered envelope unwrap chain. The first rule that applies
// selects the value that becomes the canonical result.
//
// The transport may double-wrap the service's native response under a
// generic "data" key, and older service builds returned {"content": ...}.
// The current service returns {"analysis": "<json string>"}.
var Rules = []Rule{
	{Name: "data.data", Select: selectPath("data", "data")},
	{Name: "data", Select: selectPath("data")},
	{Name: "content", Select: selectPath("content")},
	{Name: "analysis", Select: selectPath("analysis")},
	{Name: "self", Select: func(payload any) (any, bool) { return payload, true }},
}

// Normalize converts a raw service payload into the canonical Result.
// It never panics and never returns an error: absent or empty payloads
// yield Empty(), unparseable strings yield a text result.
func Normalize(raw any) Result {
	return NormalizeWith(raw, Rules)
}

// NormalizeWith runs Normalize with a custom rule chain.
func NormalizeWith(raw any, rules []Rule) (res Result) {
	defer func() {
		if recover() != nil {
			res = Empty()
		}
	}()

	payload := lift(raw)
	if isBlank(payload) {
		return Empty()
	}
	for _, rule := range rules {
		if selected, ok := rule.Select(payload); ok {
			return fromPayload(selected)
		}
	}
	return Empty()
}

// MatchRule returns the name of the first rule that applies to raw,
// or "" for blank payloads. Used for debug logging.
func MatchRule(raw any) string {
	payload := lift(raw)
	if isBlank(payload) {
		return ""
	}
	for _, rule := range Rules {
		if _, ok := rule.Select(payload); ok {
			return rule.Name
		}
	}
	return ""
}

// selectPath returns a rule selector walking nested keys. JSON strings
// are decoded at every level, so a wrapper holding an encoded object
// behaves exactly like one holding the object.
func selectPath(keys ...string) func(any) (any, bool) {
	return func(payload any) (any, bool) {
		cur := payload
		for _, key := range keys {
			m, ok := lift(cur).(map[string]any)
			if !ok {
				return nil, false
			}
			next, present := m[key]
			if !present || next == nil {
				return nil, false
			}
			cur = next
		}
		return lift(cur), true
	}
}

// fromPayload classifies a selected, already lifted value.
func fromPayload(v any) Result {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return Empty()
		}
		// lift already failed to decode it: literal display text.
		return Result{kind: KindText, text: s}
	}
	return FromValue(v)
}

// lift decodes v when it is a string holding JSON. Strings that do not
// parse are returned unchanged.
func lift(v any) any {
	for range maxLiftDepth {
		s, ok := v.(string)
		if !ok {
			return v
		}
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return v
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return v
		}
		v = decoded
	}
	return v
}

func isBlank(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(tv) == ""
	case map[string]any:
		return len(tv) == 0
	case []any:
		return len(tv) == 0
	default:
		return false
	}
}
