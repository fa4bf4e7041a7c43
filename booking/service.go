/*
service.go - Booking lifecycle

PURPOSE:
  Creates, cancels and expires room and desk bookings while keeping the one
  invariant that matters: no two confirmed bookings on the same resource and
  date overlap.

BOOK FLOW:
  validate ──▶ advisory check ──▶ price ──▶ ┌─ transaction ───────────┐ ──▶ notify
                (fast reject)               │ re-check conflicts      │
                                            │ insert (store guard)    │
                                            │ audit                   │
                                            └─────────────────────────┘

  The advisory check gives a cheap answer to the common case. The re-check
  and the store's own guard run under the store's write lock, so of two
  concurrent requests for one slot exactly one commits and the other gets a
  *ConflictError naming the winner.

HOLDS:
  A booking created with HoldForPayment is pending_payment with an expiry.
  Holds never block other bookings; the sweeper cancels them once expired.

SEE ALSO:
  - checker.go: Conflict detection
  - pricing.go: Room price
  - api/scheduler.go: Runs ExpireHolds periodically
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/notify"
)

const (
	DefaultHoldTTL = 30 * time.Minute
	entityType     = "booking"
)

type Service struct {
	Store   Store
	Checker *Checker
	Catalog *Catalog
	Rate    decimal.Decimal
	HoldTTL time.Duration
	Notify  notify.Sink
	Now     func() time.Time
}

func NewService(store Store, catalog *Catalog, rate decimal.Decimal, sink notify.Sink) *Service {
	if sink == nil {
		sink = notify.Discard
	}
	return &Service{
		Store:   store,
		Checker: NewChecker(store, catalog),
		Catalog: catalog,
		Rate:    rate,
		HoldTTL: DefaultHoldTTL,
		Notify:  sink,
		Now:     time.Now,
	}
}

// =============================================================================
// QUOTE
// =============================================================================

// Quote prices iv on a resource without booking it.
func (s *Service) Quote(resource string, iv Interval) (decimal.Decimal, error) {
	r, ok := s.Catalog.Lookup(resource)
	if !ok {
		return decimal.Zero, generic.Invalid("resource", fmt.Sprintf("unknown resource %q", resource))
	}
	if err := iv.Validate(); err != nil {
		return decimal.Zero, err
	}
	return Price(r.Capacity, iv.Start, iv.End, s.Rate), nil
}

// =============================================================================
// BOOK
// =============================================================================

type BookInput struct {
	Resource       string
	Date           generic.Date
	Interval       Interval
	Guest          Guest
	MemberID       string
	Purpose        string
	HoldForPayment bool
}

func (s *Service) validate(in BookInput) (Resource, error) {
	r, ok := s.Catalog.Lookup(in.Resource)
	if !ok {
		return Resource{}, generic.Invalid("resource", fmt.Sprintf("unknown resource %q", in.Resource))
	}
	if in.Date.IsZero() {
		return Resource{}, generic.Invalid("date", "required")
	}
	if in.Date.Before(generic.DateOf(s.Now())) {
		return Resource{}, generic.Invalid("date", "cannot book a past date")
	}
	if err := in.Interval.Validate(); err != nil {
		return Resource{}, err
	}
	if strings.TrimSpace(in.Guest.Name) == "" {
		return Resource{}, generic.Invalid("guest_name", "required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Guest.Email)); err != nil {
		return Resource{}, generic.Invalid("guest_email", "not a valid email address")
	}
	return r, nil
}

// Book creates a confirmed booking, or a pending_payment hold when
// in.HoldForPayment is set.
func (s *Service) Book(ctx context.Context, in BookInput) (*Booking, error) {
	// 1. Validate
	resource, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	// 2. Advisory check, outside any transaction
	avail, err := s.Checker.CheckConflict(ctx, resource.Name, in.Date, in.Interval)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, s.conflictError(resource.Name, in, avail.Conflicts)
	}

	// 3. Build the booking
	now := s.Now()
	b := &Booking{
		ID:        uuid.NewString(),
		Kind:      resource.Kind,
		Resource:  resource.Name,
		Date:      in.Date,
		Interval:  in.Interval,
		Status:    StatusConfirmed,
		Guest:     trimGuest(in.Guest),
		MemberID:  strings.TrimSpace(in.MemberID),
		Purpose:   strings.TrimSpace(in.Purpose),
		Amount:    Price(resource.Capacity, in.Interval.Start, in.Interval.End, s.Rate),
		CreatedAt: now,
	}
	if in.HoldForPayment {
		expires := now.Add(s.HoldTTL)
		b.Status = StatusPendingPayment
		b.ExpiresAt = &expires
	}

	// 4. Authoritative check and insert
	err = s.Store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.ListByResource(ctx, b.Resource, b.Date, StatusConfirmed)
		if err != nil {
			return err
		}
		if conflicts := FindConflicts(existing, b.Interval); len(conflicts) > 0 {
			return s.conflictError(b.Resource, in, conflicts)
		}
		if err := tx.Create(ctx, b); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.audit(generic.System, generic.AuditBookingCreated, b, map[string]any{
			"resource": b.Resource,
			"date":     b.Date.String(),
			"start":    b.Interval.Start.String(),
			"end":      b.Interval.End.String(),
			"status":   string(b.Status),
			"amount":   b.Amount.String(),
		}))
	})
	if errors.Is(err, ErrOverlap) {
		// The store guard fired; report who won.
		if avail, cerr := s.Checker.CheckConflict(ctx, b.Resource, b.Date, b.Interval); cerr == nil && !avail.Available {
			return nil, s.conflictError(b.Resource, in, avail.Conflicts)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[Booking] %s %s %s %s for %s (%s)", b.ID, b.Resource, b.Date, b.Interval, b.Guest.Email, b.Status)

	// 5. Notify
	if b.Status == StatusConfirmed {
		s.Notify.Dispatch(notify.Message{
			Kind:    notify.KindBookingConfirmed,
			To:      b.Guest.Email,
			Subject: fmt.Sprintf("Booking confirmed: %s on %s", b.Resource, b.Date),
			Data:    bookingData(b),
		})
	}
	return b, nil
}

func (s *Service) conflictError(resource string, in BookInput, conflicts []Conflict) error {
	return &ConflictError{Resource: resource, Date: in.Date, Interval: in.Interval, Conflicts: conflicts}
}

// =============================================================================
// CANCEL
// =============================================================================

func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.Store.Get(ctx, id)
}

// Cancel moves a confirmed or pending booking to cancelled.
func (s *Service) Cancel(ctx context.Context, actor generic.Actor, id string) (*Booking, error) {
	var out *Booking
	err := s.Store.WithTx(ctx, func(tx Store) error {
		b, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled {
			return &generic.TransitionError{Entity: entityType, From: string(b.Status), To: string(StatusCancelled)}
		}
		now := s.Now()
		if err := tx.UpdateStatus(ctx, id, b.Status, StatusCancelled, now); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, s.audit(actor, generic.AuditBookingCancelled, b, map[string]any{
			"previous_status": string(b.Status),
		})); err != nil {
			return err
		}
		b.Status = StatusCancelled
		b.CancelledAt = &now
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Booking] %s cancelled by %s", id, actor.ID)
	s.Notify.Dispatch(notify.Message{
		Kind:    notify.KindBookingCancelled,
		To:      out.Guest.Email,
		Subject: fmt.Sprintf("Booking cancelled: %s on %s", out.Resource, out.Date),
		Data:    bookingData(out),
	})
	return out, nil
}

// =============================================================================
// HOLD EXPIRY
// =============================================================================

// ExpireHolds cancels every pending_payment hold whose expiry has passed and
// returns how many it cancelled. A hold that changed status in the meantime
// is skipped.
func (s *Service) ExpireHolds(ctx context.Context) (int, error) {
	now := s.Now()
	holds, err := s.Store.ListExpiredHolds(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}

	expired := 0
	for i := range holds {
		b := holds[i]
		err := s.Store.WithTx(ctx, func(tx Store) error {
			if err := tx.UpdateStatus(ctx, b.ID, StatusPendingPayment, StatusCancelled, now); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, s.audit(generic.System, generic.AuditBookingHoldExpired, &b, map[string]any{
				"expires_at": b.ExpiresAt,
			}))
		})
		if generic.IsRetryable(err) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire hold %s: %w", b.ID, err)
		}
		expired++
	}
	if expired > 0 {
		log.Printf("[Booking] expired %d payment holds", expired)
	}
	return expired, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) audit(actor generic.Actor, action generic.AuditAction, b *Booking, details map[string]any) generic.AuditEntry {
	return generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  s.Now(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   b.ID,
		Details:    details,
	}
}

func trimGuest(g Guest) Guest {
	return Guest{
		Name:         strings.TrimSpace(g.Name),
		Email:        strings.TrimSpace(g.Email),
		Phone:        strings.TrimSpace(g.Phone),
		Organization: strings.TrimSpace(g.Organization),
	}
}

func bookingData(b *Booking) map[string]any {
	return map[string]any{
		"booking_id": b.ID,
		"guest_name": b.Guest.Name,
		"resource":   b.Resource,
		"date":       b.Date.String(),
		"start":      b.Interval.Start.String(),
		"end":        b.Interval.End.String(),
		"amount":     b.Amount.String(),
	}
}
