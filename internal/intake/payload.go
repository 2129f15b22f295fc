package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// canonical converts an arbitrary payload into plain JSON containers
// (map[string]any, []any, json.Number) so the path walk sees one shape.
func canonical(p Payload) (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// presentPaths lists every JSON path carrying a non-null value. The root path
// "" is always present.
func presentPaths(payload map[string]any) map[string]bool {
	out := map[string]bool{"": true}
	walkPresent("", payload, out)
	return out
}

func walkPresent(prefix string, v any, out map[string]bool) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if child == nil {
				continue
			}
			path := joinPath(prefix, k)
			out[path] = true
			walkPresent(path, child, out)
		}
	case []any:
		for i, child := range t {
			if child == nil {
				continue
			}
			path := fmt.Sprintf("%s[%d]", prefix, i)
			out[path] = true
			walkPresent(path, child, out)
		}
	}
}

// blankToNull trims strings and turns blank ones into null so typed fields
// decode to their zero value and fail "required" instead of the decoder.
func blankToNull(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = blankToNull(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = blankToNull(child)
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		return s
	default:
		return v
	}
}

func keepPresent(issues []Issue, present map[string]bool) []Issue {
	out := issues[:0]
	for _, is := range issues {
		if present[is.Path] {
			out = append(out, is)
		}
	}
	return out
}
