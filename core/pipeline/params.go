package pipeline

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/go-json-experiment/json"
)

// Params is a flat parameter map: control values plus externally supplied
// filters. Stages never mutate the map they are given.
type Params map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Keys returns the keys in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// canonical renders p with sorted keys for cache keys.
func (p Params) canonical() string {
	if len(p) == 0 {
		return "default"
	}
	b, err := json.Marshal(map[string]any(p), json.Deterministic(true))
	if err == nil {
		return string(b)
	}
	// values json cannot express still need a stable rendering
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range p.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%q:%q", k, fmt.Sprintf("%#v", p[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}
