package model

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// storedLayout is fixed width so stored timestamps sort lexically.
const storedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampLayouts are tried in order for stored timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var naturalParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseTimestamp parses a stored timestamp. ok is false when raw is empty
// or matches no known layout.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDueDate parses a due date from stored or user input. Besides the
// timestamp layouts it accepts phrases like "tomorrow" or "next friday",
// resolved relative to now; a phrase must make up the whole input. Empty
// input returns (nil, true); input that cannot be parsed returns (nil, false).
func ParseDueDate(raw string, now time.Time) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	if t, ok := ParseTimestamp(raw); ok {
		return &t, true
	}
	if layoutShaped(raw) {
		return nil, false
	}
	r, err := naturalParser.Parse(raw, now)
	if err != nil || r == nil {
		return nil, false
	}
	if r.Index != 0 || len(r.Text) != len(raw) {
		return nil, false
	}
	t := r.Time
	return &t, true
}

// layoutShaped reports whether raw looks like a numeric date or time, such as
// "2024-02-30", which only the timestamp layouts may accept.
func layoutShaped(raw string) bool {
	for _, c := range raw {
		switch {
		case c >= '0' && c <= '9':
		case strings.ContainsRune("-/:.+ TZ", c):
		default:
			return false
		}
	}
	return true
}

// FormatTimestamp is the canonical stored form of a timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(storedLayout)
}
