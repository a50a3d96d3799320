// Package datetime provides the calendar helpers used for due dates and
// billing cycles.
package datetime

import (
	"time"

	"github.com/iwvelando/loan-engine/pkg/constants"
)

const (
	// DateLayout is the format expected in requests and config files and is
	// also the output date format.
	DateLayout = constants.DateLayout
)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDate parses a DateLayout string into a UTC midnight time.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// Midnight truncates t to the start of its day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// OnDay returns the date in t's month whose day is day, clamped to the last
// day of that month (a 31st payment day lands on Feb 28/29).
func OnDay(t time.Time, day int) time.Time {
	y, m, _ := t.Date()
	last := DaysIn(y, m, t.Location())
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}

// AddMonths advances t by the given number of calendar months without
// overflowing into the following month: Jan 31 + 1 month is Feb 28/29.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	return OnDay(first, d)
}

// MonthlyOccurrence returns the date that is months after start, placed on
// day (clamped to the month's length).
func MonthlyOccurrence(start time.Time, months, day int) time.Time {
	return OnDay(AddMonths(OnDay(start, 1), months), day)
}

// NextOnOrAfter returns the first date on or after t that falls on day.
func NextOnOrAfter(t time.Time, day int) time.Time {
	t = Midnight(t)
	candidate := OnDay(t, day)
	if candidate.Before(t) {
		candidate = OnDay(AddMonths(OnDay(t, 1), 1), day)
	}
	return candidate
}

// NextAfter returns the first date strictly after t that falls on day.
func NextAfter(t time.Time, day int) time.Time {
	return NextOnOrAfter(Midnight(t).AddDate(0, 0, 1), day)
}
