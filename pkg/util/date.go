package util

import (
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, YYYY-MM-DD and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// YearFraction converts the span between now and expiry to years on an
// actual/365 basis. Expired spans return 0.
func YearFraction(now, expiry time.Time) float64 {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24 / 365
}
