package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTime accepts RFC3339 (with or without fractional seconds), a bare
// date, or unix seconds. The result is in UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e11 { // ms
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseRange parses optional from/to bounds. An empty bound stays zero; a
// malformed one is an error, as is from >= to.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	if from != "" {
		var ok bool
		if f, ok = ParseTime(from); !ok {
			return f, t, fmt.Errorf("invalid from %q", from)
		}
	}
	if to != "" {
		var ok bool
		if t, ok = ParseTime(to); !ok {
			return f, t, fmt.Errorf("invalid to %q", to)
		}
	}
	if !f.IsZero() && !t.IsZero() && !f.Before(t) {
		return f, t, fmt.Errorf("from must be before to")
	}
	return f, t, nil
}
