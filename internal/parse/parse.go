// Package parse extracts structured JSON from free-form model output.
//
// Model responses routinely wrap JSON in prose or markdown code fences, so a
// plain json.Unmarshal of the raw text fails. The extractor here strips
// fences, locates the first JSON value in the text, and balances delimiters
// to find its end. It never returns an error: callers supply a default that
// is returned when no parseable value exists, so a malformed model response
// degrades a single stage instead of failing a run.
package parse

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// StripFences removes a leading markdown code fence (with optional language
// tag) and its closing fence, returning the inner text trimmed.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop the language tag on the fence line, e.g. "json" or "markdown".
	if nl := strings.Index(text, "\n"); nl >= 0 {
		first := strings.TrimSpace(text[:nl])
		if first != "" && !strings.ContainsAny(first, "{}[]") {
			text = text[nl+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// JSONValue extracts the first JSON object or array embedded in text and
// unmarshals it. Returns def when text contains no parseable value.
func JSONValue(text string, def any) any {
	candidate := Candidate(text)
	if candidate == "" {
		zap.L().Debug("no json value found in text", zap.Int("text_len", len(text)))
		return def
	}

	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		zap.L().Debug("json candidate failed to parse", zap.Error(err))
		return def
	}
	return v
}

// JSONInto extracts the first JSON value in text and unmarshals it into dst.
// Reports whether a value was found and decoded.
func JSONInto(text string, dst any) bool {
	candidate := Candidate(text)
	if candidate == "" {
		return false
	}
	return json.Unmarshal([]byte(candidate), dst) == nil
}

// ListOfObjects extracts a JSON array of objects from text, returning def
// when the text holds no such array. A top-level object is not coerced into
// a single-element list; stages that want a list must get a list.
func ListOfObjects(text string, def []map[string]any) []map[string]any {
	v := JSONValue(text, nil)
	arr, ok := v.([]any)
	if !ok {
		return def
	}
	out := make([]map[string]any, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Candidate returns the substring of text spanning the first balanced JSON
// object or array, or "" when none exists.
//
// Balancing counts raw delimiter bytes and does not track string literals,
// so an unbalanced brace inside a quoted value throws the count off. In that
// case the captured span fails to unmarshal and the caller's default applies,
// which is an acceptable trade for keeping the scan trivial.
func Candidate(text string) string {
	text = StripFences(text)

	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}
