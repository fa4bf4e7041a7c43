/*
handlers.go - HTTP API handlers for the hub's booking, certificate and
payment services

PURPOSE:
  Exposes the domain services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Bookings:
    POST   /api/bookings/availability      Check one resource
    POST   /api/bookings/availability/all  Check every resource of a kind
    POST   /api/bookings/quote             Price a slot
    POST   /api/bookings                   Book (confirmed or held for payment)
    GET    /api/bookings/{id}              Get booking
    POST   /api/bookings/{id}/cancel       Cancel (staff)

  Certificates (staff unless noted):
    GET    /api/certificates               List, ?status=&limit=
    POST   /api/certificates               Create request
    GET    /api/certificates/{id}          Get request
    POST   /api/certificates/{id}/finance-confirm
    POST   /api/certificates/{id}/approve
    POST   /api/certificates/{id}/reject
    GET    /api/certificates/{id}/pdf      Printable certificate
    GET    /api/certificates/verify/{code} Public lookup
    POST   /api/certificates/validate      Public number check

  Payments:
    POST   /api/payments/webhook              Gateway webhook (signed)
    GET    /api/payments/verify/{reference}   Verify with gateway, reconcile
    POST   /api/payments/verify/{reference}   Same, for form posts

  Audit:
    GET    /api/audit                      Query audit log (finance, super_admin)

REQUEST FLOW:
  1. Parse HTTP request
  2. Identify the actor (staff routes)
  3. Call the domain service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad webhook signature
  - 401: Missing or invalid bearer token
  - 403: Role not allowed
  - 404: Record not found
  - 409: Booking conflict (with conflict list), invalid transition,
         lost race (with "retryable": true)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/payment"
)

// maxWebhookBody bounds how much of a webhook delivery is read.
const maxWebhookBody = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Bookings     *booking.Service
	Certificates *certificate.Workflow
	Reconciler   *payment.Reconciler
	Webhook      *payment.WebhookHandler
	Verifier     payment.Verifier
	Audit        generic.AuditLog

	// PublicURL is the externally visible base URL, printed on certificates.
	PublicURL string

	// Ping reports store health. Optional.
	Ping func(ctx context.Context) error
}

// =============================================================================
// BOOKINGS
// =============================================================================

// CheckAvailability reports whether a slot on one resource is free.
// POST /api/bookings/availability
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, iv, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := h.Bookings.Catalog.Lookup(req.Resource); !ok {
		writeDomainError(w, generic.Invalid("resource", "unknown resource "+strconv.Quote(req.Resource)))
		return
	}

	avail, err := h.Bookings.Checker.CheckConflict(r.Context(), req.Resource, date, iv)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityDTO(avail))
}

// CheckAllAvailability reports availability for every resource of a kind.
// POST /api/bookings/availability/all
func (h *Handler) CheckAllAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	kind := booking.Kind(req.Kind)
	if kind == "" {
		kind = booking.KindRoom
	}
	if !kind.Valid() {
		writeDomainError(w, generic.Invalid("kind", "must be room or desk"))
		return
	}
	date, iv, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.Bookings.Checker.CheckAll(r.Context(), kind, date, iv)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AvailabilityDTO, len(list))
	for i, a := range list {
		dtos[i] = toAvailabilityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// QuoteBooking prices a slot without booking it.
// POST /api/bookings/quote
func (h *Handler) QuoteBooking(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	iv, err := booking.ParseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	amount, err := h.Bookings.Quote(req.Resource, iv)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteDTO{
		Resource:  req.Resource,
		StartTime: iv.Start.String(),
		EndTime:   iv.End.String(),
		Amount:    amount,
	})
}

// CreateBooking books a slot.
// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, iv, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	b, err := h.Bookings.Book(r.Context(), booking.BookInput{
		Resource: req.Resource,
		Date:     date,
		Interval: iv,
		Guest: booking.Guest{
			Name:         req.Guest.Name,
			Email:        req.Guest.Email,
			Phone:        req.Guest.Phone,
			Organization: req.Guest.Organization,
		},
		MemberID:       req.MemberID,
		Purpose:        req.Purpose,
		HoldForPayment: req.HoldForPayment,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// GetBooking returns one booking.
// GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CancelBooking cancels a confirmed or held booking.
// POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated", err)
		return
	}
	b, err := h.Bookings.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// =============================================================================
// CERTIFICATES
// =============================================================================

// ListCertificates lists certificate requests, newest first.
// GET /api/certificates?status=pending&limit=50
func (h *Handler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	filter := certificate.ListFilter{Status: certificate.Status(r.URL.Query().Get("status"))}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeDomainError(w, generic.Invalid("limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	list, err := h.Certificates.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]CertificateDTO, len(list))
	for i := range list {
		dtos[i] = toCertificateDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCertificate opens a certificate request.
// POST /api/certificates
func (h *Handler) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated", err)
		return
	}
	var req CreateCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cert, err := h.Certificates.Create(r.Context(), actor, certificate.CreateInput{
		StudentName:     req.StudentName,
		StudentEmail:    req.StudentEmail,
		CourseID:        req.CourseID,
		CourseTitle:     req.CourseTitle,
		CertificateType: req.CertificateType,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCertificateDTO(cert))
}

// GetCertificate returns one certificate request.
// GET /api/certificates/{id}
func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certificates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateDTO(cert))
}

// ConfirmFinance records payment for a pending request.
// POST /api/certificates/{id}/finance-confirm
func (h *Handler) ConfirmFinance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated", err)
		return
	}

	// Body is optional: finance may confirm without recording details.
	var req FinanceConfirmRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	details, err := req.toPaymentDetails()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cert, err := h.Certificates.ConfirmFinance(r.Context(), actor, chi.URLParam(r, "id"), details)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateDTO(cert))
}

func (req FinanceConfirmRequest) toPaymentDetails() (*certificate.PaymentDetails, error) {
	if req.Amount == "" && req.Method == "" && req.Reference == "" && req.Notes == "" {
		return nil, nil
	}
	details := &certificate.PaymentDetails{
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			return nil, generic.Invalid("amount", "not a number")
		}
		details.Amount = amount
	}
	return details, nil
}

// ApproveCertificate issues the certificate number.
// POST /api/certificates/{id}/approve
func (h *Handler) ApproveCertificate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated", err)
		return
	}
	cert, err := h.Certificates.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateDTO(cert))
}

// RejectCertificate rejects a request with a reason.
// POST /api/certificates/{id}/reject
func (h *Handler) RejectCertificate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated", err)
		return
	}
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cert, err := h.Certificates.Reject(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateDTO(cert))
}

// CertificatePDF renders an approved certificate.
// GET /api/certificates/{id}/pdf
func (h *Handler) CertificatePDF(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certificates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Render fully before writing so failures still produce a JSON error.
	var buf bytes.Buffer
	if err := certificate.RenderPDF(&buf, cert, h.verifyURL(cert.VerificationCode)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="certificate-`+cert.VerificationCode+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) verifyURL(code string) string {
	return strings.TrimRight(h.PublicURL, "/") + "/api/certificates/verify/" + code
}

// VerifyCertificate looks up an issued certificate by verification code.
// GET /api/certificates/verify/{code}
func (h *Handler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certificates.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicCertificateDTO(cert))
}

// ValidateCertificate checks a certificate number. An invalid number is a
// 200 with valid=false, not an error.
// POST /api/certificates/validate
func (h *Handler) ValidateCertificate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.CertificateNumber) == "" {
		writeDomainError(w, generic.Invalid("certificate_number", "required"))
		return
	}
	v, err := h.Certificates.Validate(r.Context(), req.CertificateNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationDTO(v))
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentWebhook receives gateway events.
// POST /api/payments/webhook
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	out, err := h.Webhook.Handle(r.Context(), body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{
		Received:  true,
		Event:     out.Event,
		Handled:   out.Handled,
		Reconcile: toReconcileDTO(out.Result),
	})
}

// VerifyPayment asks the gateway about a reference and reconciles it.
// GET|POST /api/payments/verify/{reference}
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		writeDomainError(w, generic.Invalid("reference", "required"))
		return
	}
	if h.Verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "Payment gateway not configured", nil)
		return
	}

	ver, res, err := payment.VerifyAndReconcile(r.Context(), h.Verifier, h.Reconciler, reference)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyPaymentDTO{
		Reference:     ver.Reference,
		GatewayStatus: ver.Status,
		Amount:        ver.Amount,
		PaidAt:        ver.PaidAt,
		Reconcile:     toReconcileDTO(res),
	})
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit queries the audit log.
// GET /api/audit?entity_type=&entity_id=&actor_id=&action=&from=&to=&limit=
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated", err)
		return
	}
	if err := actor.Require("read audit log", generic.RoleFinance, generic.RoleSuperAdmin); err != nil {
		writeDomainError(w, err)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func parseAuditFilter(r *http.Request) (generic.AuditFilter, error) {
	q := r.URL.Query()
	f := generic.AuditFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		ActorID:    q.Get("actor_id"),
		Limit:      100,
	}
	for _, a := range q["action"] {
		f.Actions = append(f.Actions, generic.AuditAction(a))
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, generic.Invalid(p.name, "use RFC 3339")
		}
		*p.dst = &t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return f, generic.Invalid("limit", "must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and store reachability.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseSlot(date, start, end string) (generic.Date, booking.Interval, error) {
	d, err := generic.ParseDate(date)
	if err != nil {
		return generic.Date{}, booking.Interval{}, err
	}
	iv, err := booking.ParseInterval(start, end)
	if err != nil {
		return generic.Date{}, booking.Interval{}, err
	}
	return d, iv, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "Slot is already booked",
			Code:      "booking_conflict",
			Details:   err.Error(),
			Conflicts: toConflictDTOs(conflict.Conflicts),
		})
	case errors.Is(err, generic.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Code: "validation_failed", Details: err.Error()})
	case errors.Is(err, generic.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Not authenticated", Code: "unauthorized", Details: err.Error()})
	case errors.Is(err, generic.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Not allowed", Code: "forbidden", Details: err.Error()})
	case errors.Is(err, generic.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "not_found", Details: err.Error()})
	case generic.IsRetryable(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Concurrent update, try again", Code: "concurrent_modification", Details: err.Error(), Retryable: true})
	case errors.Is(err, generic.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Invalid state transition", Code: "invalid_transition", Details: err.Error()})
	case errors.Is(err, generic.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Conflict", Code: "conflict", Details: err.Error()})
	default:
		log.Printf("[API] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
