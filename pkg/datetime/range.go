package datetime

import "time"

// Range is a half-open date window (Start, End]. A zero Start or End leaves
// that side unbounded.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in the window. A value equal to Start is
// excluded so a transaction on the previous closing date is never counted twice.
// Comparison is by calendar day.
func (r Range) Contains(t time.Time) bool {
	t = Midnight(t)
	if !r.Start.IsZero() && !t.After(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// IsZero reports whether the window is unbounded on both sides.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// CycleClosingOn returns the billing window that closes on end for a card
// whose cycles close on closingDay. The start is the previous closing date,
// which stays correct when the closing day is clamped to a short month.
func CycleClosingOn(end time.Time, closingDay int) Range {
	return Range{Start: MonthlyOccurrence(end, -1, closingDay), End: Midnight(end)}
}
