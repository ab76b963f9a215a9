package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// fields is a decoded JSON object whose values are decoded lazily.
// Backend payloads are not consistent about key names, so every accessor
// takes the candidate keys in priority order and returns the first usable one.
type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		// Numeric ids are common; keep their literal form.
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (f fields) num(keys ...string) (int64, bool) {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok || isNull(raw) {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if i, err := n.Int64(); err == nil {
				return i, true
			}
			if fl, err := n.Float64(); err == nil {
				return int64(fl), true
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func (f fields) time(keys ...string) *time.Time {
	for _, k := range keys {
		if t, ok := ParseTime(f.str(k)); ok {
			return &t
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp formats the backend is known to emit.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
