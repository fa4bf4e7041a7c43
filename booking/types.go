package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
)

// =============================================================================
// RESOURCES
// =============================================================================

type Kind string

const (
	KindRoom Kind = "room"
	KindDesk Kind = "desk"
)

func (k Kind) Valid() bool { return k == KindRoom || k == KindDesk }

// Resource is a bookable room or desk.
type Resource struct {
	Name     string
	Kind     Kind
	Capacity int
}

// DefaultRooms is the hub's meeting room inventory.
var DefaultRooms = []Resource{
	{Name: "Conference Room A", Kind: KindRoom, Capacity: 10},
	{Name: "Conference Room B", Kind: KindRoom, Capacity: 6},
	{Name: "Meeting Pod 1", Kind: KindRoom, Capacity: 4},
	{Name: "Meeting Pod 2", Kind: KindRoom, Capacity: 4},
}

// DefaultDeskCount is the number of hot desks when not configured.
const DefaultDeskCount = 20

// Catalog is the fixed set of bookable resources.
type Catalog struct {
	resources []Resource
	byName    map[string]Resource
}

// NewCatalog builds a catalog of rooms plus desks "Desk 1".."Desk N".
func NewCatalog(rooms []Resource, deskCount int) *Catalog {
	c := &Catalog{byName: make(map[string]Resource)}
	for _, r := range rooms {
		c.add(r)
	}
	for i := 1; i <= deskCount; i++ {
		c.add(Resource{Name: fmt.Sprintf("Desk %d", i), Kind: KindDesk, Capacity: 1})
	}
	return c
}

func DefaultCatalog() *Catalog { return NewCatalog(DefaultRooms, DefaultDeskCount) }

func (c *Catalog) add(r Resource) {
	c.resources = append(c.resources, r)
	c.byName[r.Name] = r
}

// Lookup finds a resource by exact name.
func (c *Catalog) Lookup(name string) (Resource, bool) {
	r, ok := c.byName[strings.TrimSpace(name)]
	return r, ok
}

// OfKind lists resources of kind in catalog order.
func (c *Catalog) OfKind(kind Kind) []Resource {
	var out []Resource
	for _, r := range c.resources {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// BOOKING
// =============================================================================

type Status string

const (
	StatusConfirmed      Status = "confirmed"
	StatusPendingPayment Status = "pending_payment"
	StatusCancelled      Status = "cancelled"
)

type Guest struct {
	Name         string
	Email        string
	Phone        string
	Organization string
}

type Booking struct {
	ID       string
	Kind     Kind
	Resource string
	Date     generic.Date
	Interval Interval
	Status   Status
	Guest    Guest
	MemberID string
	Purpose  string
	Amount   decimal.Decimal

	// ExpiresAt is set only for pending_payment holds.
	ExpiresAt *time.Time

	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Blocks reports whether the booking occupies its slot for conflict purposes.
// Only confirmed bookings do; holds awaiting payment never block.
func (b Booking) Blocks() bool { return b.Status == StatusConfirmed }

// =============================================================================
// STORE
// =============================================================================

// ErrOverlap is returned by Store.Create when the booking would overlap a
// confirmed booking on the same resource and date.
var ErrOverlap = fmt.Errorf("booking overlap: %w", generic.ErrConflict)

// Reader is the read side the Checker needs.
type Reader interface {
	// ListByResource returns bookings for resource on date whose status is
	// one of statuses (all statuses when none given), ordered by start time.
	ListByResource(ctx context.Context, resource string, date generic.Date, statuses ...Status) ([]Booking, error)
}

type Store interface {
	Reader

	// Create inserts b. A confirmed booking that overlaps another confirmed
	// booking on the same resource and date fails with ErrOverlap; this is
	// the authoritative guard behind the service's own check.
	Create(ctx context.Context, b *Booking) error

	Get(ctx context.Context, id string) (*Booking, error)

	// UpdateStatus moves a booking from one status to another, recording at
	// as the cancellation time. Returns generic.ErrConcurrentModification if
	// the booking is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error

	// ListExpiredHolds returns pending_payment bookings with ExpiresAt <= now.
	ListExpiredHolds(ctx context.Context, now time.Time) ([]Booking, error)

	AppendAudit(ctx context.Context, entry generic.AuditEntry) error

	WithTx(ctx context.Context, fn func(Store) error) error
}
