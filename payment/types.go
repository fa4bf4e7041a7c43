package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// MetaEnrollmentID is the metadata key naming the course registration a
// payment is for.
const MetaEnrollmentID = "enrollment_id"

type Payment struct {
	Reference string
	MemberID  string
	Amount    decimal.Decimal
	Status    Status
	Metadata  map[string]any
	PaidAt    *time.Time
	CreatedAt time.Time
}

// RegistrationID returns the course registration named in the metadata.
// Gateways echo metadata back as JSON, so the value may arrive as a string
// or a number.
func (p Payment) RegistrationID() (string, bool) {
	v, ok := p.Metadata[MetaEnrollmentID]
	if !ok || v == nil {
		return "", false
	}
	var id string
	switch t := v.(type) {
	case string:
		id = strings.TrimSpace(t)
	case float64:
		id = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		id = strconv.Itoa(t)
	case int64:
		id = strconv.FormatInt(t, 10)
	case json.Number:
		id = t.String()
	default:
		id = fmt.Sprint(t)
	}
	return id, id != ""
}

type RegistrationStatus string

const (
	RegistrationPending RegistrationStatus = "pending"
	RegistrationPaid    RegistrationStatus = "paid"
)

// Registration is a course application awaiting (or done with) payment.
type Registration struct {
	ID            string
	MemberID      string
	Email         string
	CourseID      string
	CourseTitle   string
	PaymentStatus RegistrationStatus
}

type Course struct {
	ID            string
	Title         string
	DurationWeeks int
}

// Enrollment grants a member access to a course.
type Enrollment struct {
	ID            string
	MemberID      string
	CourseID      string
	Status        string
	PaymentStatus string
	Progress      int
	EnrolledAt    time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	GetPayment(ctx context.Context, reference string) (*Payment, error)

	// MarkPaymentSuccess sets status success and paid_at. changed is false
	// when the payment was already successful; paid_at is then left as is.
	MarkPaymentSuccess(ctx context.Context, reference string, paidAt time.Time) (changed bool, err error)

	// MarkPaymentFailed sets status failed unless the payment already
	// succeeded. changed reports whether anything was written.
	MarkPaymentFailed(ctx context.Context, reference string) (changed bool, err error)

	GetRegistration(ctx context.Context, id string) (*Registration, error)
	MarkRegistrationPaid(ctx context.Context, id string) error

	GetCourse(ctx context.Context, id string) (*Course, error)
	GetCourseByTitle(ctx context.Context, title string) (*Course, error)

	// CreateEnrollment inserts e unless the member is already enrolled in
	// the course, in which case it reports created=false and writes nothing.
	CreateEnrollment(ctx context.Context, e *Enrollment) (created bool, err error)
	GetEnrollment(ctx context.Context, memberID, courseID string) (*Enrollment, error)

	AppendAudit(ctx context.Context, entry generic.AuditEntry) error

	WithTx(ctx context.Context, fn func(Store) error) error
}
