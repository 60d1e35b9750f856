package dashfile

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Actions the terminal dashboard binds keys to.
const (
	ActionQuit        = "quit"
	ActionHelp        = "help"
	ActionRefresh     = "refresh"
	ActionNextControl = "next-control"
	ActionPrevControl = "prev-control"
	ActionNextValue   = "next-value"
	ActionPrevValue   = "prev-value"
	ActionExport      = "export-graph"
)

// DefaultKeys returns a fresh copy of the built-in bindings.
func DefaultKeys() map[string][]string {
	return map[string][]string{
		ActionQuit:        {"q", "ctrl+c"},
		ActionHelp:        {"?"},
		ActionRefresh:     {"r"},
		ActionNextControl: {"tab", "down", "j"},
		ActionPrevControl: {"shift+tab", "up", "k"},
		ActionNextValue:   {"right", "l"},
		ActionPrevValue:   {"left", "h"},
		ActionExport:      {"e"},
	}
}

// mergeKeys overlays configured bindings on the defaults. Unknown actions,
// empty key lists and keys bound to two actions are errors.
func mergeKeys(configured, defaults map[string][]string) (map[string][]string, error) {
	merged := make(map[string][]string, len(defaults))
	for action, keys := range defaults {
		merged[action] = append([]string(nil), keys...)
	}
	for action, keys := range configured {
		a := strings.TrimSpace(action)
		if !isValidActionID(a) {
			return nil, fmt.Errorf("invalid action %q", action)
		}
		if _, ok := defaults[a]; !ok {
			return nil, fmt.Errorf("unknown action %q", a)
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("action %q: keys are required", a)
		}
		out := make([]string, 0, len(keys))
		for _, key := range keys {
			k := strings.ToLower(strings.TrimSpace(key))
			if k == "" {
				return nil, fmt.Errorf("action %q: key cannot be empty", a)
			}
			out = append(out, k)
		}
		merged[a] = out
	}

	actions := make([]string, 0, len(merged))
	for a := range merged {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	owner := make(map[string]string)
	for _, a := range actions {
		for _, k := range merged[a] {
			if prev, ok := owner[k]; ok && prev != a {
				return nil, fmt.Errorf("key %q bound to both %q and %q", k, prev, a)
			}
			owner[k] = a
		}
	}
	return merged, nil
}

func isValidActionID(action string) bool {
	if action == "" {
		return false
	}
	for i, ch := range action {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			continue
		}
		if ch == '-' && i > 0 && i < len(action)-1 {
			continue
		}
		return false
	}
	return true
}
