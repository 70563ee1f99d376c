package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayouts lists the calendar date formats accepted from CSV files, query strings and messages.
var DateLayouts = []string{
	"2006-01-02",
	"02-Jan-06",
	"2-Jan-06",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	time.RFC3339,
}

// ParseDate tries every known layout and returns the date truncated to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), nil
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e11 { // ms
			ts /= 1000
		}
		return TruncateDay(time.Unix(ts, 0)), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseDateDefault parses a date or returns def if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, err := ParseDate(s); err == nil {
		return t
	}
	return def
}

// TruncateDay drops the clock part and normalises to UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24))
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
