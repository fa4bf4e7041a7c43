/*
interval.go - Half-open time intervals within a day

PURPOSE:
  A booking occupies [Start, End) on one calendar day. Two bookings touching
  at a boundary (10:00-11:00 and 11:00-12:00) do not overlap.

OVERLAP:
  a and b overlap  <=>  a.Start < b.End && b.Start < a.End

  ───────[=====a=====)──────────────
  ─────────────[=====b=====)────────   overlap
  ───────────────────[=====c=====)──   touches a, no overlap

SEE ALSO:
  - checker.go: Conflict detection against stored bookings
*/
package booking

import (
	"fmt"

	"github.com/warp/hub-engine/generic"
)

type Interval struct {
	Start generic.TimeOfDay
	End   generic.TimeOfDay
}

func NewInterval(start, end generic.TimeOfDay) Interval {
	return Interval{Start: start, End: end}
}

// ParseInterval parses two "HH:MM" strings and validates the result.
func ParseInterval(start, end string) (Interval, error) {
	s, err := generic.ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, fmt.Errorf("start: %w", err)
	}
	e, err := generic.ParseTimeOfDay(end)
	if err != nil {
		return Interval{}, fmt.Errorf("end: %w", err)
	}
	iv := Interval{Start: s, End: e}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate rejects empty, inverted and out-of-day intervals.
func (i Interval) Validate() error {
	if i.Start < 0 || i.End > generic.EndOfDay {
		return generic.Invalid("time", fmt.Sprintf("%s-%s is outside the day", i.Start, i.End))
	}
	if i.Start >= i.End {
		return generic.Invalid("end_time", fmt.Sprintf("must be after start time (%s >= %s)", i.Start, i.End))
	}
	return nil
}

func (i Interval) Minutes() int { return i.End.Minutes() - i.Start.Minutes() }

func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func (i Interval) String() string { return i.Start.String() + "-" + i.End.String() }

// Overlaps reports whether [a.Start,a.End) and [b.Start,b.End) intersect.
func Overlaps(a, b Interval) bool { return a.Overlaps(b) }
