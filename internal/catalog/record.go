package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// record is one loosely-typed catalog object. Field names vary across API
// versions, so lookups take a priority-ordered list of candidate keys.
type record map[string]any

func decodeRaw(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// decodeList decodes a JSON array of objects. Anything else yields nil.
func decodeList(raw json.RawMessage) []record {
	if len(raw) == 0 {
		return nil
	}
	var out []record
	if err := decodeRaw(raw, &out); err != nil {
		return nil
	}
	return out
}

// decodeObject decodes a single JSON object.
func decodeObject(raw json.RawMessage) (record, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var out record
	if err := decodeRaw(raw, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// text returns the first present, non-empty field among keys as a string,
// or Unknown.
func (r record) text(keys ...string) string {
	for _, k := range keys {
		if s, ok := scalar(r[k]); ok {
			return s
		}
	}
	return Unknown
}

// stripped is text passed through StripHTML.
func (r record) stripped(keys ...string) string {
	return StripHTML(r.text(keys...))
}

// integer returns field k as an integer.
func (r record) integer(k string) (int64, bool) {
	switch v := r[k].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (r record) id() (int64, bool) { return r.integer("id") }

// object returns the nested object at k.
func (r record) object(k string) record {
	m, _ := r[k].(map[string]any)
	return record(m)
}

// list returns the nested array of objects at k.
func (r record) list(k string) []record {
	items, _ := r[k].([]any)
	out := make([]record, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, record(m))
		}
	}
	return out
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any, []any:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}
