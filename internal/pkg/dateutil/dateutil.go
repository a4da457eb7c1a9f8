// Package dateutil works with calendar days. A day is represented as a
// time.Time at midnight UTC so that day arithmetic never depends on the
// time of day or on DST transitions.
package dateutil

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Day returns the calendar day of t (in t's own location) as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Parse parses a YYYY-MM-DD string into a day.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// AddDays moves a day by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}

// DaysBetween returns the whole days from a to b, negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Format renders a day as YYYY-MM-DD.
func Format(day time.Time) string {
	return day.Format(Layout)
}

// Location loads an IANA zone name, falling back to UTC for empty or unknown names.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// At returns the instant that is hour:minute on the given day in loc.
func At(day time.Time, hour, minute int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// EndOfDay returns the last second of the day in UTC.
func EndOfDay(day time.Time) time.Time {
	return AddDays(day, 1).Add(-time.Second)
}
