package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/payment"
)

// PaymentStore implements payment.Store. The Create* methods are the write
// side used by checkout and registration.
type PaymentStore struct {
	view
}

func (s *Store) Payments() *PaymentStore { return &PaymentStore{view: s.root()} }

func (p *PaymentStore) WithTx(ctx context.Context, fn func(payment.Store) error) error {
	return p.withTx(ctx, func(v view) error {
		return fn(&PaymentStore{view: v})
	})
}

func (p *PaymentStore) CreatePayment(ctx context.Context, pm *payment.Payment) error {
	metadata, err := json.Marshal(pm.Metadata)
	if err != nil {
		return fmt.Errorf("payment %s metadata: %w", pm.Reference, err)
	}
	status := pm.Status
	if status == "" {
		status = payment.StatusPending
	}
	return p.withTx(ctx, func(v view) error {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO payments (reference, member_id, amount, status, metadata, paid_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, pm.Reference, nullString(pm.MemberID), pm.Amount.String(), status,
			string(metadata), nullTime(pm.PaidAt), formatTime(pm.CreatedAt))
		if isUniqueConstraintError(err) {
			return fmt.Errorf("payment %s: %w", pm.Reference, generic.ErrConflict)
		}
		return err
	})
}

func (p *PaymentStore) CreateRegistration(ctx context.Context, r *payment.Registration) error {
	status := r.PaymentStatus
	if status == "" {
		status = payment.RegistrationPending
	}
	return p.withTx(ctx, func(v view) error {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO course_registrations (id, member_id, email, course_id, course_title, payment_status)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, nullString(r.MemberID), nullString(r.Email), nullString(r.CourseID),
			nullString(r.CourseTitle), status)
		return err
	})
}

func (p *PaymentStore) CreateCourse(ctx context.Context, c *payment.Course) error {
	return p.withTx(ctx, func(v view) error {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO courses (id, title, duration_weeks) VALUES (?, ?, ?)
		`, c.ID, c.Title, c.DurationWeeks)
		return err
	})
}

func (p *PaymentStore) GetPayment(ctx context.Context, reference string) (*payment.Payment, error) {
	var (
		pm                       payment.Payment
		member, metadata, paidAt sql.NullString
		amount, status, created  string
	)
	err := p.q.QueryRowContext(ctx, `
		SELECT reference, member_id, amount, status, metadata, paid_at, created_at
		FROM payments WHERE reference = ?
	`, reference).Scan(&pm.Reference, &member, &amount, &status, &metadata, &paidAt, &created)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Entity: "payment", ID: reference}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", reference, err)
	}

	pm.MemberID = member.String
	pm.Status = payment.Status(status)
	pm.PaidAt = parseNullTime(paidAt)
	pm.CreatedAt = parseTime(created)
	if pm.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("payment %s amount: %w", reference, err)
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &pm.Metadata); err != nil {
			return nil, fmt.Errorf("payment %s metadata: %w", reference, err)
		}
	}
	return &pm, nil
}

func (p *PaymentStore) MarkPaymentSuccess(ctx context.Context, reference string, paidAt time.Time) (bool, error) {
	return p.markPayment(ctx, reference, `
		UPDATE payments SET status = 'success', paid_at = ?
		WHERE reference = ? AND status != 'success'
	`, formatTime(paidAt), reference)
}

func (p *PaymentStore) MarkPaymentFailed(ctx context.Context, reference string) (bool, error) {
	return p.markPayment(ctx, reference, `
		UPDATE payments SET status = 'failed'
		WHERE reference = ? AND status = 'pending'
	`, reference)
}

// markPayment runs a conditional update and tells "no change" apart from
// "no such payment".
func (p *PaymentStore) markPayment(ctx context.Context, reference, query string, args ...any) (bool, error) {
	changed := false
	err := p.withTx(ctx, func(v view) error {
		res, err := v.q.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update payment %s: %w", reference, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			changed = true
			return nil
		}
		var exists int
		err = v.q.QueryRowContext(ctx, `SELECT 1 FROM payments WHERE reference = ?`, reference).Scan(&exists)
		if isNoRows(err) {
			return &generic.NotFoundError{Entity: "payment", ID: reference}
		}
		return err
	})
	return changed, err
}

func (p *PaymentStore) GetRegistration(ctx context.Context, id string) (*payment.Registration, error) {
	var (
		r                              payment.Registration
		member, email, courseID, title sql.NullString
		status                         string
	)
	err := p.q.QueryRowContext(ctx, `
		SELECT id, member_id, email, course_id, course_title, payment_status
		FROM course_registrations WHERE id = ?
	`, id).Scan(&r.ID, &member, &email, &courseID, &title, &status)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Entity: "registration", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registration %s: %w", id, err)
	}
	r.MemberID = member.String
	r.Email = email.String
	r.CourseID = courseID.String
	r.CourseTitle = title.String
	r.PaymentStatus = payment.RegistrationStatus(status)
	return &r, nil
}

func (p *PaymentStore) MarkRegistrationPaid(ctx context.Context, id string) error {
	return p.withTx(ctx, func(v view) error {
		res, err := v.q.ExecContext(ctx, `UPDATE course_registrations SET payment_status = 'paid' WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to update registration %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &generic.NotFoundError{Entity: "registration", ID: id}
		}
		return nil
	})
}

func (p *PaymentStore) GetCourse(ctx context.Context, id string) (*payment.Course, error) {
	return p.getCourse(ctx, `SELECT id, title, duration_weeks FROM courses WHERE id = ?`, id)
}

func (p *PaymentStore) GetCourseByTitle(ctx context.Context, title string) (*payment.Course, error) {
	return p.getCourse(ctx, `SELECT id, title, duration_weeks FROM courses WHERE title = ? ORDER BY id LIMIT 1`, title)
}

func (p *PaymentStore) getCourse(ctx context.Context, query, key string) (*payment.Course, error) {
	var (
		c     payment.Course
		weeks sql.NullInt64
	)
	err := p.q.QueryRowContext(ctx, query, key).Scan(&c.ID, &c.Title, &weeks)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Entity: "course", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course %s: %w", key, err)
	}
	c.DurationWeeks = int(weeks.Int64)
	return &c, nil
}

func (p *PaymentStore) CreateEnrollment(ctx context.Context, e *payment.Enrollment) (bool, error) {
	created := false
	err := p.withTx(ctx, func(v view) error {
		res, err := v.q.ExecContext(ctx, `
			INSERT INTO enrollments (id, member_id, course_id, status, payment_status, progress, enrolled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (member_id, course_id) DO NOTHING
		`, e.ID, e.MemberID, e.CourseID, e.Status, e.PaymentStatus, e.Progress, formatTime(e.EnrolledAt))
		if err != nil {
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		return nil
	})
	return created, err
}

func (p *PaymentStore) GetEnrollment(ctx context.Context, memberID, courseID string) (*payment.Enrollment, error) {
	var (
		e        payment.Enrollment
		enrolled string
	)
	err := p.q.QueryRowContext(ctx, `
		SELECT id, member_id, course_id, status, payment_status, progress, enrolled_at
		FROM enrollments WHERE member_id = ? AND course_id = ?
	`, memberID, courseID).Scan(&e.ID, &e.MemberID, &e.CourseID, &e.Status, &e.PaymentStatus, &e.Progress, &enrolled)
	if isNoRows(err) {
		return nil, &generic.NotFoundError{Entity: "enrollment", ID: memberID + "/" + courseID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	e.EnrolledAt = parseTime(enrolled)
	return &e, nil
}

// CountEnrollments returns how many enrollments a member has in a course.
func (p *PaymentStore) CountEnrollments(ctx context.Context, memberID, courseID string) (int, error) {
	var n int
	err := p.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE member_id = ? AND course_id = ?
	`, memberID, courseID).Scan(&n)
	return n, err
}

func (p *PaymentStore) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	return p.withTx(ctx, func(v view) error { return appendAudit(ctx, v.q, e) })
}
