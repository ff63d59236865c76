package batchlog

import (
	"unicode/utf8"

	"github.com/partsflow/storefront/backend/internal/documentstore"
)

// maxDetailLen bounds serialized payload strings carried in details or
// metadata; request/response bodies are truncated rather than stored whole.
const maxDetailLen = 1000

// sanitizeEntry converts an entry to a document, stripping nil values
// recursively (the document store rejects null fields) and truncating
// oversized strings.
func sanitizeEntry(e Entry) documentstore.Document {
	doc := documentstore.Document{
		"id":        e.ID,
		"timestamp": e.Timestamp,
		"level":     string(e.Level),
		"category":  e.Category,
		"message":   e.Message,
	}
	if e.UserID != "" {
		doc["userId"] = e.UserID
	}
	if e.UserEmail != "" {
		doc["userEmail"] = e.UserEmail
	}
	if e.DurationMS > 0 {
		doc["duration"] = e.DurationMS
	}
	if d := stripNil(e.Details); len(d) > 0 {
		doc["details"] = d
	}
	if m := stripNil(e.Metadata); len(m) > 0 {
		doc["metadata"] = m
	}
	return doc
}

// stripNil removes nil-valued keys from a map, recursing into nested maps
// and slices, and truncates long strings.
func stripNil(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if cleaned, keep := cleanValue(v); keep {
			out[k] = cleaned
		}
	}
	return out
}

func cleanValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		if len(t) > maxDetailLen {
			return truncate(t, maxDetailLen), true
		}
		return t, true
	case map[string]any:
		return stripNil(t), true
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if cleaned, keep := cleanValue(e); keep {
				out = append(out, cleaned)
			}
		}
		return out, true
	default:
		return v, true
	}
}

// truncate cuts s to at most n bytes, backing off to a rune boundary so
// the result stays valid UTF-8.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// cloneMap deep-copies a details/metadata map so the buffer never aliases
// caller-owned data.
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
