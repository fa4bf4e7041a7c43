/*
workflow.go - Certificate approval state machine

PURPOSE:
  A certificate request passes three people before a number exists:
  an admin creates it, finance confirms payment, a super admin approves.
  Every step is role-checked, state-checked and audited, and only the final
  approval allocates a certificate number.

STATE MACHINE:
  ┌─────────┐ ConfirmFinance ┌───────────────────┐ Approve  ┌──────────┐
  │ pending │ ─────────────▶ │ finance_confirmed │ ───────▶ │ approved │
  └─────────┘                └───────────────────┘          └──────────┘
       │                             │
       │ Reject                      │ Reject
       ▼                             ▼
  ┌──────────────────────────────────────┐
  │               rejected               │
  └──────────────────────────────────────┘

ROLES:
  Create:         admin, super_admin
  ConfirmFinance: finance, super_admin
  Approve:        super_admin
  Reject:         super_admin

CHECK ORDER:
  role -> input -> load -> state. A finance user asking to approve gets
  forbidden even for a request that doesn't exist.

CONCURRENCY:
  Every update is a compare-and-set on the status the workflow read. Two
  finance users confirming at once: one wins, the other gets
  ErrConcurrentModification. Approve allocates the number inside the same
  transaction as the status change and retries the whole step when the
  allocation loses a race.

SEE ALSO:
  - allocator.go: Number allocation
  - types.go: Transition graph
*/
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/notify"
)

const (
	// maxApproveAttempts bounds retries of a lost allocation race.
	maxApproveAttempts = 3

	// maxCodeAttempts bounds retries of a verification code collision.
	maxCodeAttempts = 3

	entityType = "certificate"
)

type Workflow struct {
	Store     Store
	Allocator *Allocator
	Notify    notify.Sink
	Now       func() time.Time
}

func NewWorkflow(store Store, allocator *Allocator, sink notify.Sink) *Workflow {
	if sink == nil {
		sink = notify.Discard
	}
	return &Workflow{Store: store, Allocator: allocator, Notify: sink, Now: time.Now}
}

// =============================================================================
// CREATE
// =============================================================================

type CreateInput struct {
	StudentName     string
	StudentEmail    string
	CourseID        string
	CourseTitle     string
	CertificateType string
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.StudentName) == "" {
		return generic.Invalid("student_name", "required")
	}
	if strings.TrimSpace(in.StudentEmail) == "" {
		return generic.Invalid("student_email", "required")
	}
	if _, err := mail.ParseAddress(in.StudentEmail); err != nil {
		return generic.Invalid("student_email", "not a valid email address")
	}
	if strings.TrimSpace(in.CourseTitle) == "" {
		return generic.Invalid("course_title", "required")
	}
	return nil
}

// Create opens a pending request with a fresh verification code.
func (w *Workflow) Create(ctx context.Context, actor generic.Actor, in CreateInput) (*Request, error) {
	if err := actor.Require("create certificate request", generic.RoleAdmin, generic.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	certType := strings.TrimSpace(in.CertificateType)
	if certType == "" {
		certType = "completion"
	}

	now := w.Now()
	req := &Request{
		ID:              uuid.NewString(),
		StudentName:     strings.TrimSpace(in.StudentName),
		StudentEmail:    strings.TrimSpace(in.StudentEmail),
		CourseID:        strings.TrimSpace(in.CourseID),
		CourseTitle:     strings.TrimSpace(in.CourseTitle),
		CertificateType: certType,
		Status:          StatusPending,
		InitiatedBy:     actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		req.VerificationCode, err = NewVerificationCode()
		if err != nil {
			return nil, err
		}
		err = w.Store.WithTx(ctx, func(s Store) error {
			if err := s.Create(ctx, req); err != nil {
				return err
			}
			return s.AppendAudit(ctx, w.audit(actor, generic.AuditCertificateCreated, req.ID, map[string]any{
				"student_name": req.StudentName,
				"course_title": req.CourseTitle,
			}))
		})
		if !errors.Is(err, ErrDuplicateVerificationCode) {
			break
		}
		log.Printf("[Certificate] verification code collision for %s, regenerating", req.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create certificate request: %w", err)
	}

	log.Printf("[Certificate] %s created by %s for %s (%s)", req.ID, actor.ID, req.StudentName, req.CourseTitle)
	return req, nil
}

// =============================================================================
// FINANCE CONFIRMATION
// =============================================================================

// ConfirmFinance records that payment was received. Payment details are
// optional; when given, the amount must not be negative.
func (w *Workflow) ConfirmFinance(ctx context.Context, actor generic.Actor, id string, payment *PaymentDetails) (*Request, error) {
	if err := actor.Require("confirm finance", generic.RoleFinance, generic.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if payment != nil && payment.Amount.IsNegative() {
		return nil, generic.Invalid("amount", "must not be negative")
	}

	return w.transition(ctx, id, StatusFinanceConfirmed, func(s Store, req *Request, now time.Time) error {
		req.FinanceConfirmedBy = actor.ID
		req.FinanceConfirmedAt = &now
		req.Payment = payment

		details := map[string]any{}
		if payment != nil {
			details["amount"] = payment.Amount.String()
			details["method"] = payment.Method
			details["reference"] = payment.Reference
		}
		return s.AppendAudit(ctx, w.audit(actor, generic.AuditFinanceConfirmed, req.ID, details))
	})
}

// =============================================================================
// APPROVAL
// =============================================================================

// Approve allocates the certificate number and moves the request to
// approved. Allocation and status change commit together or not at all.
func (w *Workflow) Approve(ctx context.Context, actor generic.Actor, id string) (*Request, error) {
	if err := actor.Require("approve certificate", generic.RoleSuperAdmin); err != nil {
		return nil, err
	}

	var (
		req *Request
		err error
	)
	for attempt := 1; attempt <= maxApproveAttempts; attempt++ {
		req, err = w.transition(ctx, id, StatusApproved, func(s Store, req *Request, now time.Time) error {
			alloc, err := w.Allocator.Allocate(ctx, s, req.CourseTitle)
			if err != nil {
				return err
			}
			req.CertificateNumber = alloc.CertificateNumber
			req.CourseCode = alloc.CourseCode
			req.Year = alloc.Year
			req.Sequence = alloc.Sequence
			req.ApprovedBy = actor.ID
			req.ApprovedAt = &now

			return s.AppendAudit(ctx, w.audit(actor, generic.AuditCertificateApproved, req.ID, map[string]any{
				"certificate_number": alloc.CertificateNumber,
				"sequence":           alloc.Sequence,
			}))
		})
		if !generic.IsRetryable(err) {
			break
		}
		log.Printf("[Certificate] approve %s lost allocation race (attempt %d/%d)", id, attempt, maxApproveAttempts)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[Certificate] %s approved by %s as %s", req.ID, actor.ID, req.CertificateNumber)
	w.Notify.Dispatch(notify.Message{
		Kind:    notify.KindCertificateApproved,
		To:      req.StudentEmail,
		Subject: "Your certificate has been issued",
		Data: map[string]any{
			"student_name":       req.StudentName,
			"course_title":       req.CourseTitle,
			"certificate_number": req.CertificateNumber,
			"verification_code":  req.VerificationCode,
		},
	})
	return req, nil
}

// =============================================================================
// REJECTION
// =============================================================================

func (w *Workflow) Reject(ctx context.Context, actor generic.Actor, id, reason string) (*Request, error) {
	if err := actor.Require("reject certificate", generic.RoleSuperAdmin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, generic.Invalid("reason", "rejection reason is required")
	}

	req, err := w.transition(ctx, id, StatusRejected, func(s Store, req *Request, now time.Time) error {
		req.RejectionReason = reason
		req.RejectedBy = actor.ID
		req.RejectedAt = &now
		return s.AppendAudit(ctx, w.audit(actor, generic.AuditCertificateRejected, req.ID, map[string]any{
			"reason": reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Certificate] %s rejected by %s", req.ID, actor.ID)
	w.Notify.Dispatch(notify.Message{
		Kind:    notify.KindCertificateRejected,
		To:      req.StudentEmail,
		Subject: "Your certificate request was not approved",
		Data: map[string]any{
			"student_name": req.StudentName,
			"course_title": req.CourseTitle,
			"reason":       reason,
		},
	})
	return req, nil
}

// transition loads the request, checks the edge, applies mutate and writes
// the result with a compare-and-set on the status it loaded, all in one
// transaction.
func (w *Workflow) transition(
	ctx context.Context,
	id string,
	to Status,
	mutate func(s Store, req *Request, now time.Time) error,
) (*Request, error) {
	var out *Request
	err := w.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		from := req.Status
		if !CanTransition(from, to) {
			return &generic.TransitionError{Entity: entityType, From: string(from), To: string(to)}
		}

		now := w.Now()
		req.Status = to
		req.UpdatedAt = now
		if err := mutate(s, req, now); err != nil {
			return err
		}
		if err := s.Update(ctx, req, from); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (w *Workflow) Get(ctx context.Context, id string) (*Request, error) {
	return w.Store.Get(ctx, id)
}

func (w *Workflow) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, generic.Invalid("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return w.Store.List(ctx, filter)
}

// Verify looks up an issued certificate by its public verification code.
// Requests that are not approved are reported as not found.
func (w *Workflow) Verify(ctx context.Context, code string) (*Request, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !IsValidVerificationCode(code) {
		return nil, generic.Invalid("code", "expected XXXX-XXXX-XXXX-XXXX")
	}
	req, err := w.Store.GetByVerificationCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved {
		return nil, &generic.NotFoundError{Entity: entityType, ID: code}
	}
	return req, nil
}

// Validation is the outcome of checking a certificate number.
type Validation struct {
	Number        string
	FormatValid   bool
	ChecksumValid bool
	Exists        bool
	Certificate   *Request
}

// Valid reports whether the number is well formed, correctly checksummed
// and belongs to an issued certificate.
func (v Validation) Valid() bool { return v.FormatValid && v.ChecksumValid && v.Exists }

// Validate checks a certificate number offline (format, checksum) and
// against the store (existence). A bad number is a result, not an error.
func (w *Workflow) Validate(ctx context.Context, number string) (Validation, error) {
	number = strings.TrimSpace(number)
	v := Validation{Number: number}

	if !w.Allocator.Scheme.MatchesFormat(number) {
		return v, nil
	}
	v.FormatValid = true

	if !w.Allocator.Scheme.Checksummer.Validate(number) {
		return v, nil
	}
	v.ChecksumValid = true

	req, err := w.Store.GetByNumber(ctx, number)
	if generic.IsNotFound(err) {
		return v, nil
	}
	if err != nil {
		return v, err
	}
	v.Exists = req.Status == StatusApproved
	if v.Exists {
		v.Certificate = req
	}
	return v, nil
}

func (w *Workflow) audit(actor generic.Actor, action generic.AuditAction, id string, details map[string]any) generic.AuditEntry {
	return generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  w.Now(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   id,
		Details:    details,
	}
}
