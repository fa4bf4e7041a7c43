/*
time.go - Calendar days and times of day

PURPOSE:
  Bookings are expressed in local wall-clock terms: a calendar day with no
  timezone and a time of day within that day. These two small value types
  keep that representation explicit instead of passing time.Time around
  with an implied zone.

KEY TYPES:
  Date:      A calendar day (YYYY-MM-DD)
  TimeOfDay: Minutes since midnight (HH:MM), always within one day

STORAGE FORMAT:
  Both types format zero-padded ("2025-03-10", "09:00"), so their string
  forms compare lexicographically in the same order as the values. The
  SQLite store relies on this for range predicates.

SEE ALSO:
  - booking/interval.go: [start,end) intervals built on TimeOfDay
*/
package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day with no timezone
// =============================================================================

const dateLayout = "2006-01-02"

type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, ErrValidation)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }
func (d Date) String() string  { return d.Time().Format(dateLayout) }
func (d Date) IsZero() bool    { return d.Year == 0 && d.Month == 0 && d.Day == 0 }
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// =============================================================================
// TIME OF DAY - Minutes since midnight
// =============================================================================

// TimeOfDay is a wall-clock time within a single day, in minutes.
// Valid values are 00:00 through 24:00 (24:00 only as an interval end).
type TimeOfDay int

const minutesPerDay = 24 * 60

// EndOfDay is 24:00, the latest valid interval end.
const EndOfDay = TimeOfDay(minutesPerDay)

func NewTimeOfDay(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

// ParseTimeOfDay parses "HH:MM" (seconds, if present as "HH:MM:SS", must be zero).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q (use HH:MM): %w", s, ErrValidation)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q (use HH:MM): %w", s, ErrValidation)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid time %q (seconds not supported): %w", s, ErrValidation)
		}
	}
	t := NewTimeOfDay(h, m)
	if t > minutesPerDay {
		return 0, fmt.Errorf("invalid time %q (beyond end of day): %w", s, ErrValidation)
	}
	return t, nil
}

func (t TimeOfDay) Hour() int      { return int(t) / 60 }
func (t TimeOfDay) Minute() int    { return int(t) % 60 }
func (t TimeOfDay) Minutes() int   { return int(t) }
func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

// On returns the instant at this time of day on d, in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}
