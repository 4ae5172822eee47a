// Package progress animates the processing stages a service response
// declares.
//
// The animation is simulated. By the time a run starts the response has
// already arrived; stages are replayed at a fixed cadence to give the user
// a sense of the work performed. Progress states never reflect real
// backend timing.
package progress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stage is one declared unit of backend work.
type Stage struct {
	Stage  string `json:"stage" yaml:"stage"`
	Detail string `json:"detail" yaml:"detail"`
}

// State is the simulated progress of one run.
// ActiveIndex advances from 0 to Total; ActiveIndex == Total is complete.
type State struct {
	ActiveIndex int `json:"active_index" yaml:"active_index"`
	Total       int `json:"total" yaml:"total"`
}

// Complete reports whether every stage has been passed.
func (s State) Complete() bool { return s.ActiveIndex >= s.Total }

// NormalizeStages converts raw stage entries into Stages.
func NormalizeStages(raw []any) []Stage {
	stages := make([]Stage, 0, len(raw))
	for i, entry := range raw {
		stages = append(stages, NormalizeStage(entry, i))
	}
	return stages
}

// NormalizeStage converts one raw entry at position index (0-based).
// Strings are parsed as JSON when possible, otherwise used as the label.
// Objects contribute "stage" (or "name", "title") and "detail" (or
// "description"). A missing label becomes "Step N".
func NormalizeStage(raw any, index int) Stage {
	fallback := "Step " + strconv.Itoa(index+1)

	switch v := raw.(type) {
	case nil:
		return Stage{Stage: fallback}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Stage{Stage: fallback}
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			switch d := decoded.(type) {
			case map[string]any:
				return stageFromObject(d, fallback)
			case string:
				return NormalizeStage(d, index)
			}
		}
		return Stage{Stage: s}
	case map[string]any:
		return stageFromObject(v, fallback)
	default:
		return Stage{Stage: fmt.Sprint(v)}
	}
}

func stageFromObject(m map[string]any, fallback string) Stage {
	label := firstString(m, "stage", "name", "title")
	if label == "" {
		label = fallback
	}
	return Stage{Stage: label, Detail: firstString(m, "detail", "description")}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
