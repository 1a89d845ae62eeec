package cleaner

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// timestamp layouts accepted on input. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s into UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseNumber reads an optional number. ok is false only when text was
// present but unreadable; empty and NaN cells are simply absent.
func parseNumber(s string) (v *float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	return &f, true
}

// within keeps v only when it lies in [lo, hi].
func within(v *float64, lo, hi float64) *float64 {
	if v == nil || *v < lo || *v > hi {
		return nil
	}
	return v
}

// parseRating accepts 1..5, including float renderings such as "4.0".
func parseRating(s string) (r *int, ok bool) {
	v, ok := parseNumber(s)
	if v == nil {
		return nil, ok
	}
	if *v != math.Trunc(*v) || *v < 1 || *v > 5 {
		return nil, true
	}
	n := int(*v)
	return &n, true
}
