/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (which carries no JSON tags) from the external API
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Bookings:
    AvailabilityRequest, AvailabilityDTO, QuoteRequest, QuoteDTO,
    CreateBookingRequest, BookingDTO, ConflictDTO

  Certificates:
    CreateCertificateRequest, FinanceConfirmRequest, RejectRequest,
    CertificateDTO, ValidateRequest, ValidationDTO

  Payments:
    ReconcileDTO, VerifyPaymentDTO

  Audit:
    AuditEntryDTO

VALIDATION:
  Validation is done in the domain services, not in DTOs. DTOs are pure
  data carriers; handlers only parse dates and times.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/payment"
)

// =============================================================================
// BOOKINGS
// =============================================================================

// AvailabilityRequest asks whether a slot is free. Resource is ignored by
// the /all variant, which uses Kind instead.
type AvailabilityRequest struct {
	Resource  string `json:"resource"`
	Kind      string `json:"kind,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type ConflictDTO struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type AvailabilityDTO struct {
	Resource  string        `json:"resource"`
	Available bool          `json:"available"`
	Conflicts []ConflictDTO `json:"conflicts"`
}

type QuoteRequest struct {
	Resource  string `json:"resource"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type QuoteDTO struct {
	Resource  string          `json:"resource"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
	Amount    decimal.Decimal `json:"amount"`
}

type GuestDTO struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type CreateBookingRequest struct {
	Resource       string   `json:"resource"`
	Date           string   `json:"date"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Guest          GuestDTO `json:"guest"`
	MemberID       string   `json:"member_id,omitempty"`
	Purpose        string   `json:"purpose,omitempty"`
	HoldForPayment bool     `json:"hold_for_payment,omitempty"`
}

type BookingDTO struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Resource    string          `json:"resource"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	Status      string          `json:"status"`
	Guest       GuestDTO        `json:"guest"`
	MemberID    string          `json:"member_id,omitempty"`
	Purpose     string          `json:"purpose,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

func toConflictDTOs(cs []booking.Conflict) []ConflictDTO {
	out := make([]ConflictDTO, len(cs))
	for i, c := range cs {
		out[i] = ConflictDTO{ID: c.ID, StartTime: c.Start.String(), EndTime: c.End.String()}
	}
	return out
}

func toAvailabilityDTO(a booking.Availability) AvailabilityDTO {
	return AvailabilityDTO{
		Resource:  a.Resource,
		Available: a.Available,
		Conflicts: toConflictDTOs(a.Conflicts),
	}
}

func toBookingDTO(b *booking.Booking) BookingDTO {
	return BookingDTO{
		ID:        b.ID,
		Kind:      string(b.Kind),
		Resource:  b.Resource,
		Date:      b.Date.String(),
		StartTime: b.Interval.Start.String(),
		EndTime:   b.Interval.End.String(),
		Status:    string(b.Status),
		Guest: GuestDTO{
			Name:         b.Guest.Name,
			Email:        b.Guest.Email,
			Phone:        b.Guest.Phone,
			Organization: b.Guest.Organization,
		},
		MemberID:    b.MemberID,
		Purpose:     b.Purpose,
		Amount:      b.Amount,
		ExpiresAt:   b.ExpiresAt,
		CreatedAt:   b.CreatedAt,
		CancelledAt: b.CancelledAt,
	}
}

// =============================================================================
// CERTIFICATES
// =============================================================================

type CreateCertificateRequest struct {
	StudentName     string `json:"student_name"`
	StudentEmail    string `json:"student_email"`
	CourseID        string `json:"course_id,omitempty"`
	CourseTitle     string `json:"course_title"`
	CertificateType string `json:"certificate_type,omitempty"`
}

// FinanceConfirmRequest carries optional payment details. Amount is a
// string so clients can send exact decimals.
type FinanceConfirmRequest struct {
	Amount    string `json:"amount,omitempty"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type PaymentDetailsDTO struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

type CertificateDTO struct {
	ID                 string             `json:"id"`
	StudentName        string             `json:"student_name"`
	StudentEmail       string             `json:"student_email"`
	CourseID           string             `json:"course_id,omitempty"`
	CourseTitle        string             `json:"course_title"`
	CertificateType    string             `json:"certificate_type"`
	Status             string             `json:"status"`
	VerificationCode   string             `json:"verification_code"`
	CertificateNumber  string             `json:"certificate_number,omitempty"`
	RejectionReason    string             `json:"rejection_reason,omitempty"`
	Payment            *PaymentDetailsDTO `json:"payment,omitempty"`
	InitiatedBy        string             `json:"initiated_by"`
	FinanceConfirmedBy string             `json:"finance_confirmed_by,omitempty"`
	FinanceConfirmedAt *time.Time         `json:"finance_confirmed_at,omitempty"`
	ApprovedBy         string             `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time         `json:"approved_at,omitempty"`
	RejectedBy         string             `json:"rejected_by,omitempty"`
	RejectedAt         *time.Time         `json:"rejected_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toCertificateDTO(r *certificate.Request) CertificateDTO {
	dto := CertificateDTO{
		ID:                 r.ID,
		StudentName:        r.StudentName,
		StudentEmail:       r.StudentEmail,
		CourseID:           r.CourseID,
		CourseTitle:        r.CourseTitle,
		CertificateType:    r.CertificateType,
		Status:             string(r.Status),
		VerificationCode:   r.VerificationCode,
		CertificateNumber:  r.CertificateNumber,
		RejectionReason:    r.RejectionReason,
		InitiatedBy:        r.InitiatedBy,
		FinanceConfirmedBy: r.FinanceConfirmedBy,
		FinanceConfirmedAt: r.FinanceConfirmedAt,
		ApprovedBy:         r.ApprovedBy,
		ApprovedAt:         r.ApprovedAt,
		RejectedBy:         r.RejectedBy,
		RejectedAt:         r.RejectedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.Payment != nil {
		dto.Payment = &PaymentDetailsDTO{
			Amount:    r.Payment.Amount,
			Method:    r.Payment.Method,
			Reference: r.Payment.Reference,
			Notes:     r.Payment.Notes,
		}
	}
	return dto
}

// PublicCertificateDTO is what the public verification endpoints reveal.
type PublicCertificateDTO struct {
	StudentName       string     `json:"student_name"`
	CourseTitle       string     `json:"course_title"`
	CertificateType   string     `json:"certificate_type"`
	CertificateNumber string     `json:"certificate_number"`
	VerificationCode  string     `json:"verification_code"`
	IssuedAt          *time.Time `json:"issued_at,omitempty"`
	Issuer            string     `json:"issuer"`
}

func toPublicCertificateDTO(r *certificate.Request) PublicCertificateDTO {
	return PublicCertificateDTO{
		StudentName:       r.StudentName,
		CourseTitle:       r.CourseTitle,
		CertificateType:   r.CertificateType,
		CertificateNumber: r.CertificateNumber,
		VerificationCode:  r.VerificationCode,
		IssuedAt:          r.ApprovedAt,
		Issuer:            certificate.IssuerName,
	}
}

type ValidateRequest struct {
	CertificateNumber string `json:"certificate_number"`
}

type ValidationDTO struct {
	CertificateNumber string                `json:"certificate_number"`
	Valid             bool                  `json:"valid"`
	FormatValid       bool                  `json:"format_valid"`
	ChecksumValid     bool                  `json:"checksum_valid"`
	Exists            bool                  `json:"exists"`
	Certificate       *PublicCertificateDTO `json:"certificate,omitempty"`
}

func toValidationDTO(v certificate.Validation) ValidationDTO {
	dto := ValidationDTO{
		CertificateNumber: v.Number,
		Valid:             v.Valid(),
		FormatValid:       v.FormatValid,
		ChecksumValid:     v.ChecksumValid,
		Exists:            v.Exists,
	}
	if v.Certificate != nil {
		pub := toPublicCertificateDTO(v.Certificate)
		dto.Certificate = &pub
	}
	return dto
}

// =============================================================================
// PAYMENTS
// =============================================================================

type EnrollmentDTO struct {
	ID            string    `json:"id"`
	MemberID      string    `json:"member_id"`
	CourseID      string    `json:"course_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	EnrolledAt    time.Time `json:"enrolled_at"`
}

type ReconcileDTO struct {
	Reference         string         `json:"reference"`
	PaymentStatus     string         `json:"payment_status"`
	RegistrationID    string         `json:"registration_id,omitempty"`
	Enrollment        *EnrollmentDTO `json:"enrollment,omitempty"`
	EnrollmentCreated bool           `json:"enrollment_created"`
	AlreadyReconciled bool           `json:"already_reconciled"`
}

func toReconcileDTO(res *payment.Result) *ReconcileDTO {
	if res == nil {
		return nil
	}
	dto := &ReconcileDTO{
		RegistrationID:    res.RegistrationID,
		EnrollmentCreated: res.EnrollmentCreated,
		AlreadyReconciled: res.AlreadyReconciled,
	}
	if res.Payment != nil {
		dto.Reference = res.Payment.Reference
		dto.PaymentStatus = string(res.Payment.Status)
	}
	if e := res.Enrollment; e != nil {
		dto.Enrollment = &EnrollmentDTO{
			ID:            e.ID,
			MemberID:      e.MemberID,
			CourseID:      e.CourseID,
			Status:        e.Status,
			PaymentStatus: e.PaymentStatus,
			EnrolledAt:    e.EnrolledAt,
		}
	}
	return dto
}

type WebhookResponse struct {
	Received  bool          `json:"received"`
	Event     string        `json:"event,omitempty"`
	Handled   bool          `json:"handled"`
	Reconcile *ReconcileDTO `json:"reconcile,omitempty"`
}

type VerifyPaymentDTO struct {
	Reference     string          `json:"reference"`
	GatewayStatus string          `json:"gateway_status"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Reconcile     *ReconcileDTO   `json:"reconcile,omitempty"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		ActorID:    e.ActorID,
		ActorRole:  string(e.ActorRole),
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    e.Details,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string        `json:"error"`
	Code      string        `json:"code,omitempty"`
	Details   any           `json:"details,omitempty"`
	Conflicts []ConflictDTO `json:"conflicts,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
}
