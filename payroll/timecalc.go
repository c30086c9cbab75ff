/*
timecalc.go - Hour normalization

PURPOSE:
  Turns a start/end wall-clock pair (or a pair of scan timestamps) into a
  worked-hours figure with the site's rounding rules applied.

RULES:
  1. Elapsed minutes are floored to the 5-minute grid. Never rounded up,
     never rounded to nearest: 07:59 worked pays 07:55.
  2. Overnight pairs (end <= start with the overnight flag set) gain 24h.
  3. A non-overnight pair with end before start is a validation error, not
     a negative duration.
  4. A zero-length pair is zero hours, not an error.
  5. A missing bound leaves hours UNDEFINED (ErrMissingBound). Callers must
     not substitute zero as if it were measured.

Hours are decimal with two-decimal presentation; the only truncation is the
5-minute floor, so every output is a whole multiple of 5 minutes.
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	roundingGridMinutes = 5
	minutesPerDay       = 24 * 60
)

var sixty = decimal.NewFromInt(60)

// ParseClock parses an "HH:mm" wall-clock value into minutes since midnight.
func ParseClock(s string) (int64, error) {
	if s == "" {
		return 0, ErrMissingBound
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("%q is not HH:mm", s)}
	}
	return int64(t.Hour()*60 + t.Minute()), nil
}

// FloorToGrid floors raw minutes to the 5-minute grid.
func FloorToGrid(minutes int64) int64 {
	if minutes < 0 {
		return 0
	}
	return minutes - minutes%roundingGridMinutes
}

// MinutesToHours converts grid minutes to decimal hours, two decimal places.
func MinutesToHours(minutes int64) decimal.Decimal {
	return decimal.NewFromInt(minutes).DivRound(sixty, 2)
}

// NormalizeSpanMinutes computes the floored minutes between two clock values.
// This is the single source of truth for elapsed-time math; NormalizeRange
// and the session builder both go through it.
func NormalizeSpanMinutes(startMin, endMin int64, overnight bool) (int64, error) {
	elapsed := endMin - startMin
	if overnight && endMin < startMin {
		elapsed += minutesPerDay
	}
	if elapsed < 0 {
		return 0, &ValidationError{Field: "end_time", Message: "end before start without overnight flag"}
	}
	return FloorToGrid(elapsed), nil
}

// NormalizeRange turns an "HH:mm" start/end pair into worked hours.
func NormalizeRange(start, end string, overnight bool) (decimal.Decimal, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return decimal.Zero, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return decimal.Zero, err
	}
	mins, err := NormalizeSpanMinutes(startMin, endMin, overnight)
	if err != nil {
		return decimal.Zero, err
	}
	return MinutesToHours(mins), nil
}

// NormalizeTimestamps computes floored minutes between two scan timestamps.
// Scan pairs carry full dates, so the overnight question never arises here;
// an out before its in is a validation error.
func NormalizeTimestamps(in, out time.Time) (int64, error) {
	if out.Before(in) {
		return 0, &ValidationError{Field: "timestamp", Message: "out scan before in scan"}
	}
	return FloorToGrid(int64(out.Sub(in).Minutes())), nil
}

// ClockString formats minutes since midnight back to "HH:mm".
func ClockString(minutes int64) string {
	minutes %= minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
