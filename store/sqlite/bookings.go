package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/generic"
)

// BookingStore implements booking.Store.
type BookingStore struct {
	view
}

func (s *Store) Bookings() *BookingStore { return &BookingStore{view: s.root()} }

func (b *BookingStore) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	return b.withTx(ctx, func(v view) error {
		return fn(&BookingStore{view: v})
	})
}

func (b *BookingStore) Create(ctx context.Context, bk *booking.Booking) error {
	return b.withTx(ctx, func(v view) error {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO bookings
			(id, kind, resource, booking_date, start_time, end_time, status,
			 guest_name, guest_email, guest_phone, guest_organization,
			 member_id, purpose, amount, expires_at, created_at, cancelled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			bk.ID,
			bk.Kind,
			bk.Resource,
			bk.Date.String(),
			bk.Interval.Start.String(),
			bk.Interval.End.String(),
			bk.Status,
			bk.Guest.Name,
			bk.Guest.Email,
			nullString(bk.Guest.Phone),
			nullString(bk.Guest.Organization),
			nullString(bk.MemberID),
			nullString(bk.Purpose),
			bk.Amount.String(),
			nullTime(bk.ExpiresAt),
			formatTime(bk.CreatedAt),
			nullTime(bk.CancelledAt),
		)
		if err != nil {
			if isOverlapError(err) {
				return booking.ErrOverlap
			}
			if isUniqueConstraintError(err) {
				return fmt.Errorf("booking %s: %w", bk.ID, generic.ErrConflict)
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
}

const bookingColumns = `
	id, kind, resource, booking_date, start_time, end_time, status,
	guest_name, guest_email, guest_phone, guest_organization,
	member_id, purpose, amount, expires_at, created_at, cancelled_at`

func (b *BookingStore) Get(ctx context.Context, id string) (*booking.Booking, error) {
	rows, err := b.q.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking %s: %w", id, err)
	}
	list, err := scanBookings(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &generic.NotFoundError{Entity: "booking", ID: id}
	}
	return &list[0], nil
}

func (b *BookingStore) ListByResource(ctx context.Context, resource string, date generic.Date, statuses ...booking.Status) ([]booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE resource = ? AND booking_date = ?`
	args := []any{resource, date.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_time`

	rows, err := b.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return scanBookings(rows)
}

func (b *BookingStore) UpdateStatus(ctx context.Context, id string, from, to booking.Status, at time.Time) error {
	return b.withTx(ctx, func(v view) error {
		var cancelledAt sql.NullString
		if to == booking.StatusCancelled {
			cancelledAt = nullTime(&at)
		}
		res, err := v.q.ExecContext(ctx, `
			UPDATE bookings SET status = ?, cancelled_at = COALESCE(?, cancelled_at)
			WHERE id = ? AND status = ?
		`, to, cancelledAt, id, from)
		if err != nil {
			return fmt.Errorf("failed to update booking %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}

		var current string
		err = v.q.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&current)
		if isNoRows(err) {
			return &generic.NotFoundError{Entity: "booking", ID: id}
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("booking %s is %s, expected %s: %w", id, current, from, generic.ErrConcurrentModification)
	})
}

func (b *BookingStore) ListExpiredHolds(ctx context.Context, now time.Time) ([]booking.Booking, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending_payment' AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at
	`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	return scanBookings(rows)
}

func (b *BookingStore) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	return b.withTx(ctx, func(v view) error { return appendAudit(ctx, v.q, e) })
}

func scanBookings(rows *sql.Rows) ([]booking.Booking, error) {
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		var (
			bk                                     booking.Booking
			kind, status, date, start, end, amount string
			phone, org, member, purpose            sql.NullString
			expiresAt, cancelledAt                 sql.NullString
			createdAt                              string
		)
		if err := rows.Scan(
			&bk.ID, &kind, &bk.Resource, &date, &start, &end, &status,
			&bk.Guest.Name, &bk.Guest.Email, &phone, &org,
			&member, &purpose, &amount, &expiresAt, &createdAt, &cancelledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}

		bk.Kind = booking.Kind(kind)
		bk.Status = booking.Status(status)
		bk.Guest.Phone = phone.String
		bk.Guest.Organization = org.String
		bk.MemberID = member.String
		bk.Purpose = purpose.String
		bk.ExpiresAt = parseNullTime(expiresAt)
		bk.CancelledAt = parseNullTime(cancelledAt)
		bk.CreatedAt = parseTime(createdAt)

		var err error
		if bk.Date, err = generic.ParseDate(date); err != nil {
			return nil, fmt.Errorf("booking %s: %w", bk.ID, err)
		}
		if bk.Interval.Start, err = generic.ParseTimeOfDay(start); err != nil {
			return nil, fmt.Errorf("booking %s: %w", bk.ID, err)
		}
		if bk.Interval.End, err = generic.ParseTimeOfDay(end); err != nil {
			return nil, fmt.Errorf("booking %s: %w", bk.ID, err)
		}
		if bk.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("booking %s amount: %w", bk.ID, err)
		}
		out = append(out, bk)
	}
	return out, rows.Err()
}
