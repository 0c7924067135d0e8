package runner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// copyMap creates a shallow copy of a map
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copy := make(map[string]any, len(m))
	for k, v := range m {
		copy[k] = v
	}
	return copy
}

// FormatValue renders an open structured value (scalar, array, or object)
// as human-readable text for the transcript. Nested values fall back to
// compact JSON.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case float64:
		// JSON numbers decode as float64; print integers without a
		// trailing fraction.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(data)
	}
}

// FormatOutputs renders a node's outputs map as "key: value" lines with
// stable key ordering. Returns an empty string for empty outputs.
func FormatOutputs(outputs map[string]any) string {
	if len(outputs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(outputs))
	for key := range outputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var lines []string
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", key, FormatValue(outputs[key])))
	}
	return strings.Join(lines, "\n")
}
