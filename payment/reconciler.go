/*
reconciler.go - Payment-to-enrollment reconciliation

PURPOSE:
  When the gateway reports a successful charge, the member who paid for a
  course must end up enrolled in it exactly once, no matter how many times
  the success is reported (webhook retries, manual verify, both).

FLOW (one transaction):
  1. Mark the payment success with paid_at (no-op if already success)
  2. If metadata names a registration, mark it paid
  3. Resolve the course: registration course id, else by course title
  4. Insert enrollment active/paid/0%, skipped if (member, course) exists

  Every step is idempotent, so a second reconcile of the same reference
  changes nothing and reports AlreadyReconciled.

SEE ALSO:
  - webhook.go: Signature-checked entry point
  - paystack.go: Gateway verification entry point
*/
package payment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/notify"
)

const entityType = "payment"

// Result describes what a reconciliation did.
type Result struct {
	Payment           *Payment
	RegistrationID    string
	Enrollment        *Enrollment
	EnrollmentCreated bool
	AlreadyReconciled bool
}

type Reconciler struct {
	Store  Store
	Notify notify.Sink
	Now    func() time.Time
}

func NewReconciler(store Store, sink notify.Sink) *Reconciler {
	if sink == nil {
		sink = notify.Discard
	}
	return &Reconciler{Store: store, Notify: sink, Now: time.Now}
}

// Reconcile applies a successful payment. Unknown references return a
// *generic.NotFoundError.
func (r *Reconciler) Reconcile(ctx context.Context, reference string) (*Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, generic.Invalid("reference", "required")
	}

	var res *Result
	var reg *Registration
	err := r.Store.WithTx(ctx, func(s Store) error {
		res = &Result{}
		reg = nil
		now := r.Now()

		// 1. Payment status
		changed, err := s.MarkPaymentSuccess(ctx, reference, now)
		if err != nil {
			return err
		}
		res.AlreadyReconciled = !changed

		p, err := s.GetPayment(ctx, reference)
		if err != nil {
			return err
		}
		res.Payment = p

		// 2. Registration
		regID, ok := p.RegistrationID()
		if !ok {
			return r.auditSuccess(ctx, s, res)
		}
		res.RegistrationID = regID

		reg, err = s.GetRegistration(ctx, regID)
		if generic.IsNotFound(err) {
			log.Printf("[Payment] %s names registration %s which does not exist", reference, regID)
			return r.auditSuccess(ctx, s, res)
		}
		if err != nil {
			return err
		}
		if err := s.MarkRegistrationPaid(ctx, regID); err != nil {
			return err
		}

		// 3. Course
		course, err := r.resolveCourse(ctx, s, reg)
		if err != nil {
			return err
		}
		memberID := p.MemberID
		if memberID == "" {
			memberID = reg.MemberID
		}
		if course == nil || memberID == "" {
			log.Printf("[Payment] %s: no course or member for registration %s, skipping enrollment", reference, regID)
			return r.auditSuccess(ctx, s, res)
		}

		// 4. Enrollment
		e := &Enrollment{
			ID:            uuid.NewString(),
			MemberID:      memberID,
			CourseID:      course.ID,
			Status:        "active",
			PaymentStatus: "paid",
			Progress:      0,
			EnrolledAt:    now,
		}
		created, err := s.CreateEnrollment(ctx, e)
		if err != nil {
			return err
		}
		res.EnrollmentCreated = created
		if !created {
			if e, err = s.GetEnrollment(ctx, memberID, course.ID); err != nil {
				return err
			}
		}
		res.Enrollment = e
		return r.auditSuccess(ctx, s, res)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", reference, err)
	}

	if res.EnrollmentCreated {
		log.Printf("[Payment] %s: enrolled member %s in course %s", reference, res.Enrollment.MemberID, res.Enrollment.CourseID)
		to := ""
		if reg != nil {
			to = reg.Email
		}
		r.Notify.Dispatch(notify.Message{
			Kind:    notify.KindEnrollmentCreated,
			To:      to,
			Subject: "You're enrolled",
			Data: map[string]any{
				"member_id": res.Enrollment.MemberID,
				"course_id": res.Enrollment.CourseID,
				"reference": reference,
			},
		})
	} else if res.AlreadyReconciled {
		log.Printf("[Payment] %s already reconciled", reference)
	}
	return res, nil
}

func (r *Reconciler) resolveCourse(ctx context.Context, s Store, reg *Registration) (*Course, error) {
	if reg.CourseID != "" {
		c, err := s.GetCourse(ctx, reg.CourseID)
		if err == nil {
			return c, nil
		}
		if !generic.IsNotFound(err) {
			return nil, err
		}
	}
	if reg.CourseTitle == "" {
		return nil, nil
	}
	c, err := s.GetCourseByTitle(ctx, reg.CourseTitle)
	if generic.IsNotFound(err) {
		return nil, nil
	}
	return c, err
}

// auditSuccess records the reconciliation once, and again when a repeat
// delivery is the one that finally enrolls the member.
func (r *Reconciler) auditSuccess(ctx context.Context, s Store, res *Result) error {
	if res.AlreadyReconciled && !res.EnrollmentCreated {
		return nil
	}
	details := map[string]any{
		"amount": res.Payment.Amount.String(),
	}
	if res.RegistrationID != "" {
		details["registration_id"] = res.RegistrationID
	}
	if res.Enrollment != nil {
		details["enrollment_id"] = res.Enrollment.ID
		details["course_id"] = res.Enrollment.CourseID
	}
	return s.AppendAudit(ctx, r.audit(generic.AuditPaymentReconciled, res.Payment.Reference, details))
}

// MarkFailed records a failed charge. A payment that already succeeded is
// left alone.
func (r *Reconciler) MarkFailed(ctx context.Context, reference string) (*Payment, error) {
	var out *Payment
	err := r.Store.WithTx(ctx, func(s Store) error {
		changed, err := s.MarkPaymentFailed(ctx, reference)
		if err != nil {
			return err
		}
		if out, err = s.GetPayment(ctx, reference); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.AppendAudit(ctx, r.audit(generic.AuditPaymentFailed, reference, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("mark %s failed: %w", reference, err)
	}
	return out, nil
}

func (r *Reconciler) audit(action generic.AuditAction, reference string, details map[string]any) generic.AuditEntry {
	return generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  r.Now(),
		ActorID:    generic.System.ID,
		ActorRole:  generic.System.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   reference,
		Details:    details,
	}
}
