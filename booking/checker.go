/*
checker.go - Booking conflict detection

PURPOSE:
  Answers "is this slot free?" for one resource or for every resource of a
  kind, listing the bookings that are in the way. The Checker is read-only;
  the authoritative check happens again inside the booking transaction (see
  service.go), because an answer from here can be stale by the time the
  caller acts on it.

SEE ALSO:
  - interval.go: Overlap rule
  - service.go: Book re-checks under the store's write lock
*/
package booking

import (
	"context"
	"fmt"

	"github.com/warp/hub-engine/generic"
)

// Conflict identifies an existing booking that overlaps a requested slot.
type Conflict struct {
	ID    string
	Start generic.TimeOfDay
	End   generic.TimeOfDay
}

type Availability struct {
	Resource  string
	Available bool
	Conflicts []Conflict
}

type Checker struct {
	Store   Reader
	Catalog *Catalog
}

func NewChecker(store Reader, catalog *Catalog) *Checker {
	return &Checker{Store: store, Catalog: catalog}
}

// FindConflicts returns the blocking bookings in existing that overlap iv.
// The result is never nil.
func FindConflicts(existing []Booking, iv Interval) []Conflict {
	conflicts := []Conflict{}
	for _, b := range existing {
		if !b.Blocks() {
			continue
		}
		if b.Interval.Overlaps(iv) {
			conflicts = append(conflicts, Conflict{ID: b.ID, Start: b.Interval.Start, End: b.Interval.End})
		}
	}
	return conflicts
}

// CheckConflict reports whether iv on date is free for resource. The caller
// validates iv first.
func (c *Checker) CheckConflict(ctx context.Context, resource string, date generic.Date, iv Interval) (Availability, error) {
	existing, err := c.Store.ListByResource(ctx, resource, date, StatusConfirmed)
	if err != nil {
		return Availability{}, fmt.Errorf("list bookings for %s on %s: %w", resource, date, err)
	}
	conflicts := FindConflicts(existing, iv)
	return Availability{
		Resource:  resource,
		Available: len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

// CheckAll checks every resource of kind in catalog order.
func (c *Checker) CheckAll(ctx context.Context, kind Kind, date generic.Date, iv Interval) ([]Availability, error) {
	if !kind.Valid() {
		return nil, generic.Invalid("kind", fmt.Sprintf("unknown resource kind %q", kind))
	}
	if err := iv.Validate(); err != nil {
		return nil, err
	}

	resources := c.Catalog.OfKind(kind)
	out := make([]Availability, 0, len(resources))
	for _, r := range resources {
		a, err := c.CheckConflict(ctx, r.Name, date, iv)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
