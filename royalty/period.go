/*
period.go - Reporting and guarantee windows

PURPOSE:
  Royalties are always computed and compared per WINDOW: the contract's
  reporting frequency defines the window a sales report covers, and the
  minimum guarantee defines the window its amount applies to. This file maps
  a date onto the window containing it and generates adjacent windows.

WINDOW BOUNDS:
  Windows are date-granular and the end bound is INCLUSIVE: a quarterly
  window is [Jan 1, Mar 31]. Contracts describe their reporting intervals in
  whole days, and an inclusive end keeps period labels and SQL BETWEEN
  queries aligned.
*/
package royalty

import (
	"fmt"
	"time"
)

// =============================================================================
// FREQUENCY - How often the licensee reports
// =============================================================================

type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// ParseFrequency validates a textual reporting frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
		return Frequency(s), nil
	default:
		return "", fmt.Errorf("%w: unknown reporting frequency %q", ErrInvalidTerms, s)
	}
}

// Frequency converts a guarantee period to the equivalent window frequency.
func (g GuaranteePeriod) Frequency() Frequency {
	switch g {
	case GuaranteeMonthly:
		return FrequencyMonthly
	case GuaranteeQuarterly:
		return FrequencyQuarterly
	default:
		return FrequencyAnnual
	}
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is one reporting interval. End is inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Date builds a date-granular UTC time, the only granularity windows use.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// WindowFor returns the window of the given frequency containing date.
func WindowFor(f Frequency, date time.Time) Window {
	y, m, _ := date.Date()
	switch f {
	case FrequencyMonthly:
		start := Date(y, m, 1)
		return Window{Start: start, End: start.AddDate(0, 1, -1)}
	case FrequencyQuarterly:
		quarterStart := time.Month((int(m)-1)/3*3 + 1)
		start := Date(y, quarterStart, 1)
		return Window{Start: start, End: start.AddDate(0, 3, -1)}
	default: // FrequencyAnnual
		return Window{Start: Date(y, time.January, 1), End: Date(y, time.December, 31)}
	}
}

// Contains reports whether t falls inside the window [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Next returns the window immediately following this one, assuming w was
// produced by WindowFor.
func (w Window) Next() Window {
	nextStart := w.End.AddDate(0, 0, 1)
	months := monthsSpanned(w.Start, nextStart)
	return Window{Start: nextStart, End: nextStart.AddDate(0, months, -1)}
}

func monthsSpanned(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}

// Label renders a human-readable window name: "2025-07" for a month,
// "2025-Q3" for a quarter, "2025" for a year, and an explicit date range
// for anything irregular.
func (w Window) Label() string {
	y, m, d := w.Start.Date()
	if d == 1 {
		switch monthsSpanned(w.Start, w.End.AddDate(0, 0, 1)) {
		case 1:
			return fmt.Sprintf("%04d-%02d", y, m)
		case 3:
			if (int(m)-1)%3 == 0 {
				return fmt.Sprintf("%04d-Q%d", y, (int(m)-1)/3+1)
			}
		case 12:
			if m == time.January {
				return fmt.Sprintf("%04d", y)
			}
		}
	}
	return fmt.Sprintf("%s to %s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

func (w Window) String() string {
	return "[" + w.Start.Format("2006-01-02") + ", " + w.End.Format("2006-01-02") + "]"
}
