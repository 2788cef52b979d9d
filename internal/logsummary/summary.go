// Package logsummary turns raw log query results into short display lines.
package logsummary

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"alarm-relay/internal/models"
)

const (
	// MaxRecords is the most log records summarized per notification.
	MaxRecords = 5

	maxMessageLen   = 100
	truncatedMarker = "(...)"
)

// structured is a log line emitted by our JSON loggers. Only lines carrying a
// traceId are rendered field by field.
type structured struct {
	Component json.RawMessage
	Time      json.RawMessage
	Msg       json.RawMessage
	TraceID   json.RawMessage
}

// entry is either a structured log line or the raw fallback text.
type entry struct {
	fields *structured
	raw    string
}

// Summarize renders at most MaxRecords records, in input order. It never
// fails: anything that is not a structured log line degrades to truncated
// raw text.
func Summarize(records []models.LogRecord) []string {
	result := make([]string, 0, MaxRecords)
	for i, rec := range records {
		if i == MaxRecords {
			break
		}
		if line := stripBlankLines(parse(rec.Message).render()); line != "" {
			result = append(result, line)
		}
	}
	return result
}

func parse(message string) entry {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(message), &obj); err != nil {
		return entry{raw: message}
	}
	fields := structured{
		Component: obj["component"],
		Time:      obj["time"],
		Msg:       obj["msg"],
		TraceID:   obj["traceId"],
	}
	if !present(fields.TraceID) {
		return entry{raw: message}
	}
	return entry{fields: &fields}
}

func (e entry) render() string {
	if e.fields == nil {
		return truncate(e.raw)
	}

	var b strings.Builder
	writeField(&b, "component", e.fields.Component, false)
	writeField(&b, "time", e.fields.Time, false)
	writeField(&b, "msg", e.fields.Msg, true)
	writeField(&b, "traceId", e.fields.TraceID, false)
	return b.String()
}

func writeField(b *strings.Builder, key string, value json.RawMessage, shorten bool) {
	if !present(value) {
		return
	}
	text := valueText(value)
	if shorten {
		text = truncate(text)
	}
	b.WriteString(key)
	b.WriteString(": '")
	b.WriteString(text)
	b.WriteString("'\n")
}

// present reports whether a JSON value is set and not falsy.
func present(value json.RawMessage) bool {
	v := bytes.TrimSpace(value)
	switch string(v) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

func valueText(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return string(value)
	}
	return compact.String()
}

// truncate keeps the first maxMessageLen characters and marks the cut.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxMessageLen]) + truncatedMarker
}

func stripBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
