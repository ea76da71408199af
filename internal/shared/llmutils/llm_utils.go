package llmutils

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// Truncate shortens a string to at most n runes, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ArgsPreview renders tool arguments as compact JSON capped at n runes, for logs.
func ArgsPreview(args map[string]any, n int) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return Truncate(string(b), n)
}

// ToolHint generates a short hint string for a list of tool calls,
// e.g. `search_table("ORDERS"), list_data_sources`.
func ToolHint(tcs []schema.ToolCallRequest) string {
	parts := make([]string, 0, len(tcs))
	for _, tc := range tcs {
		// first string argument by key order, so the hint is stable
		keys := make([]string, 0, len(tc.Arguments))
		for k := range tc.Arguments {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var firstVal string
		for _, k := range keys {
			if s, ok := tc.Arguments[k].(string); ok && s != "" {
				firstVal = s
				break
			}
		}
		if firstVal == "" {
			parts = append(parts, tc.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", tc.Name, Truncate(firstVal, 40)))
	}
	return strings.Join(parts, ", ")
}
