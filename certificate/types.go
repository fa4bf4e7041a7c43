package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
)

// =============================================================================
// STATUS - Approval state machine
// =============================================================================

type Status string

const (
	StatusPending          Status = "pending"
	StatusFinanceConfirmed Status = "finance_confirmed"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// transitions is the complete transition graph. approved and rejected are
// terminal: a rejected request is never resubmitted in place.
var transitions = map[Status][]Status{
	StatusPending:          {StatusFinanceConfirmed, StatusRejected},
	StatusFinanceConfirmed: {StatusApproved, StatusRejected},
}

// CanTransition reports whether from -> to is an edge of the approval graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFinanceConfirmed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// =============================================================================
// REQUEST - A certificate issuance request
// =============================================================================

// PaymentDetails are recorded by finance when confirming a request.
type PaymentDetails struct {
	Amount    decimal.Decimal
	Method    string
	Reference string
	Notes     string
}

type Request struct {
	ID              string
	StudentName     string
	StudentEmail    string
	CourseID        string
	CourseTitle     string
	CertificateType string
	Status          Status

	// Assigned at creation, immutable.
	VerificationCode string

	// Assigned only by the approved transition.
	CertificateNumber string
	CourseCode        string
	Year              int
	Sequence          int

	RejectionReason string
	Payment         *PaymentDetails

	InitiatedBy        string
	FinanceConfirmedBy string
	FinanceConfirmedAt *time.Time
	ApprovedBy         string
	ApprovedAt         *time.Time
	RejectedBy         string
	RejectedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckInvariants verifies the record-level invariants: a number exists if
// and only if the request is approved, and a reason exists if and only if
// it is rejected.
func (r *Request) CheckInvariants() error {
	if (r.Status == StatusApproved) != (r.CertificateNumber != "") {
		return fmt.Errorf("certificate %s: status %s with number %q", r.ID, r.Status, r.CertificateNumber)
	}
	if (r.Status == StatusRejected) != (r.RejectionReason != "") {
		return fmt.Errorf("certificate %s: status %s with rejection reason %q", r.ID, r.Status, r.RejectionReason)
	}
	if r.VerificationCode == "" {
		return fmt.Errorf("certificate %s: missing verification code", r.ID)
	}
	return nil
}

// =============================================================================
// STORE - Persistence for certificate requests
// =============================================================================

// ErrDuplicateVerificationCode is returned by Store.Create when the code is
// already taken. The workflow generates a fresh code and tries again.
var ErrDuplicateVerificationCode = fmt.Errorf("duplicate verification code: %w", generic.ErrConflict)

type ListFilter struct {
	Status Status
	Limit  int
}

// SequenceSource hands out the next certificate sequence for a course/year.
// Implementations must be atomic: two callers never receive the same value.
type SequenceSource interface {
	NextSequence(ctx context.Context, prefix, courseCode string, year int) (int, error)
}

// Store persists certificate requests.
type Store interface {
	SequenceSource

	// Create inserts a new request. Returns ErrDuplicateVerificationCode if the
	// verification code is taken.
	Create(ctx context.Context, r *Request) error

	// Get, GetByVerificationCode and GetByNumber return *generic.NotFoundError
	// when nothing matches.
	Get(ctx context.Context, id string) (*Request, error)
	GetByVerificationCode(ctx context.Context, code string) (*Request, error)
	GetByNumber(ctx context.Context, number string) (*Request, error)

	List(ctx context.Context, filter ListFilter) ([]Request, error)

	// Update writes r only if the stored status still equals expected.
	// Returns generic.ErrConcurrentModification when the status moved on or
	// the certificate number collides with an existing one.
	Update(ctx context.Context, r *Request, expected Status) error

	AppendAudit(ctx context.Context, entry generic.AuditEntry) error

	// WithTx runs fn atomically. If fn returns an error nothing is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
