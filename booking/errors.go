package booking

import (
	"fmt"
	"strings"

	"github.com/warp/hub-engine/generic"
)

// ConflictError is returned when a requested slot overlaps confirmed
// bookings. Conflicts lists what is in the way.
type ConflictError struct {
	Resource  string
	Date      generic.Date
	Interval  Interval
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	slots := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		slots[i] = c.Start.String() + "-" + c.End.String()
	}
	return fmt.Sprintf("%s on %s %s conflicts with %s",
		e.Resource, e.Date, e.Interval, strings.Join(slots, ", "))
}

func (e *ConflictError) Unwrap() error { return generic.ErrConflict }
