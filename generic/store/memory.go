// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/payment"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds every table behind one mutex. Each domain gets a view
// (Bookings, Certificates, Payments) implementing its Store interface.
// Transactions hold the mutex for their whole duration and roll back from
// a snapshot on error, so concurrent callers are fully serialised.
type Memory struct {
	mu sync.Mutex

	bookings      map[string]booking.Booking
	certificates  map[string]certificate.Request
	sequences     map[seqKey]int
	payments      map[string]payment.Payment
	registrations map[string]payment.Registration
	courses       map[string]payment.Course
	enrollments   map[enrollKey]payment.Enrollment
	audit         []generic.AuditEntry
}

type seqKey struct {
	CourseCode string
	Year       int
}

type enrollKey struct {
	MemberID string
	CourseID string
}

func NewMemory() *Memory {
	return &Memory{
		bookings:      make(map[string]booking.Booking),
		certificates:  make(map[string]certificate.Request),
		sequences:     make(map[seqKey]int),
		payments:      make(map[string]payment.Payment),
		registrations: make(map[string]payment.Registration),
		courses:       make(map[string]payment.Course),
		enrollments:   make(map[enrollKey]payment.Enrollment),
	}
}

func (m *Memory) Bookings() booking.Store         { return &memBookings{m: m} }
func (m *Memory) Certificates() certificate.Store { return &memCertificates{m: m} }
func (m *Memory) Payments() *MemPayments          { return &MemPayments{m: m} }

// locked runs fn under the mutex unless the caller already holds it.
func (m *Memory) locked(inTx bool, fn func() error) error {
	if inTx {
		return fn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// withTx runs fn under the mutex and restores the snapshot if fn fails.
// Nested calls join the outer transaction.
func (m *Memory) withTx(inTx bool, fn func() error) error {
	if inTx {
		return fn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	bookings      map[string]booking.Booking
	certificates  map[string]certificate.Request
	sequences     map[seqKey]int
	payments      map[string]payment.Payment
	registrations map[string]payment.Registration
	courses       map[string]payment.Course
	enrollments   map[enrollKey]payment.Enrollment
	auditLen      int
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		bookings:      copyMap(m.bookings),
		certificates:  copyMap(m.certificates),
		sequences:     copyMap(m.sequences),
		payments:      copyMap(m.payments),
		registrations: copyMap(m.registrations),
		courses:       copyMap(m.courses),
		enrollments:   copyMap(m.enrollments),
		auditLen:      len(m.audit),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.bookings = s.bookings
	m.certificates = s.certificates
	m.sequences = s.sequences
	m.payments = s.payments
	m.registrations = s.registrations
	m.courses = s.courses
	m.enrollments = s.enrollments
	m.audit = m.audit[:s.auditLen]
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Append adds an audit entry. Append-only.
func (m *Memory) Append(_ context.Context, e generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

// Query returns matching entries, newest first.
func (m *Memory) Query(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []generic.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		if f.Matches(m.audit[i]) {
			out = append(out, m.audit[i])
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

type memBookings struct {
	m    *Memory
	inTx bool
}

func (v *memBookings) WithTx(_ context.Context, fn func(booking.Store) error) error {
	return v.m.withTx(v.inTx, func() error {
		return fn(&memBookings{m: v.m, inTx: true})
	})
}

func (v *memBookings) Create(_ context.Context, b *booking.Booking) error {
	return v.m.locked(v.inTx, func() error {
		if _, ok := v.m.bookings[b.ID]; ok {
			return fmt.Errorf("booking %s: %w", b.ID, generic.ErrConflict)
		}
		if b.Blocks() {
			for _, other := range v.m.bookings {
				if other.Resource == b.Resource && other.Date == b.Date && other.Blocks() &&
					other.Interval.Overlaps(b.Interval) {
					return booking.ErrOverlap
				}
			}
		}
		v.m.bookings[b.ID] = *b
		return nil
	})
}

func (v *memBookings) Get(_ context.Context, id string) (*booking.Booking, error) {
	var out *booking.Booking
	err := v.m.locked(v.inTx, func() error {
		b, ok := v.m.bookings[id]
		if !ok {
			return &generic.NotFoundError{Entity: "booking", ID: id}
		}
		out = &b
		return nil
	})
	return out, err
}

func (v *memBookings) ListByResource(_ context.Context, resource string, date generic.Date, statuses ...booking.Status) ([]booking.Booking, error) {
	var out []booking.Booking
	err := v.m.locked(v.inTx, func() error {
		for _, b := range v.m.bookings {
			if b.Resource == resource && b.Date == date && statusIn(b.Status, statuses) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.Start < out[j].Interval.Start })
	return out, err
}

func (v *memBookings) UpdateStatus(_ context.Context, id string, from, to booking.Status, at time.Time) error {
	return v.m.locked(v.inTx, func() error {
		b, ok := v.m.bookings[id]
		if !ok {
			return &generic.NotFoundError{Entity: "booking", ID: id}
		}
		if b.Status != from {
			return fmt.Errorf("booking %s is %s, expected %s: %w", id, b.Status, from, generic.ErrConcurrentModification)
		}
		b.Status = to
		if to == booking.StatusCancelled {
			b.CancelledAt = &at
		}
		v.m.bookings[id] = b
		return nil
	})
}

func (v *memBookings) ListExpiredHolds(_ context.Context, now time.Time) ([]booking.Booking, error) {
	var out []booking.Booking
	err := v.m.locked(v.inTx, func() error {
		for _, b := range v.m.bookings {
			if b.Status == booking.StatusPendingPayment && b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, err
}

func (v *memBookings) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	return v.m.locked(v.inTx, func() error {
		v.m.audit = append(v.m.audit, e)
		return nil
	})
}

func statusIn(s booking.Status, statuses []booking.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// =============================================================================
// CERTIFICATES
// =============================================================================

type memCertificates struct {
	m    *Memory
	inTx bool
}

func (v *memCertificates) WithTx(_ context.Context, fn func(certificate.Store) error) error {
	return v.m.withTx(v.inTx, func() error {
		return fn(&memCertificates{m: v.m, inTx: true})
	})
}

func (v *memCertificates) Create(_ context.Context, r *certificate.Request) error {
	return v.m.locked(v.inTx, func() error {
		if _, ok := v.m.certificates[r.ID]; ok {
			return fmt.Errorf("certificate %s: %w", r.ID, generic.ErrConflict)
		}
		for _, other := range v.m.certificates {
			if other.VerificationCode == r.VerificationCode {
				return certificate.ErrDuplicateVerificationCode
			}
		}
		if err := r.CheckInvariants(); err != nil {
			return err
		}
		v.m.certificates[r.ID] = *r
		return nil
	})
}

func (v *memCertificates) Get(_ context.Context, id string) (*certificate.Request, error) {
	return v.find(id, func(r certificate.Request) bool { return r.ID == id })
}

func (v *memCertificates) GetByVerificationCode(_ context.Context, code string) (*certificate.Request, error) {
	return v.find(code, func(r certificate.Request) bool { return r.VerificationCode == code })
}

func (v *memCertificates) GetByNumber(_ context.Context, number string) (*certificate.Request, error) {
	return v.find(number, func(r certificate.Request) bool {
		return r.CertificateNumber != "" && r.CertificateNumber == number
	})
}

func (v *memCertificates) find(key string, match func(certificate.Request) bool) (*certificate.Request, error) {
	var out *certificate.Request
	err := v.m.locked(v.inTx, func() error {
		for _, r := range v.m.certificates {
			if match(r) {
				r := r
				out = &r
				return nil
			}
		}
		return &generic.NotFoundError{Entity: "certificate", ID: key}
	})
	return out, err
}

func (v *memCertificates) List(_ context.Context, f certificate.ListFilter) ([]certificate.Request, error) {
	var out []certificate.Request
	err := v.m.locked(v.inTx, func() error {
		for _, r := range v.m.certificates {
			if f.Status == "" || r.Status == f.Status {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (v *memCertificates) Update(_ context.Context, r *certificate.Request, expected certificate.Status) error {
	return v.m.locked(v.inTx, func() error {
		cur, ok := v.m.certificates[r.ID]
		if !ok {
			return &generic.NotFoundError{Entity: "certificate", ID: r.ID}
		}
		if cur.Status != expected {
			return fmt.Errorf("certificate %s is %s, expected %s: %w", r.ID, cur.Status, expected, generic.ErrConcurrentModification)
		}
		if r.CertificateNumber != "" {
			for id, other := range v.m.certificates {
				if id != r.ID && other.CertificateNumber == r.CertificateNumber {
					return fmt.Errorf("certificate number %s taken: %w", r.CertificateNumber, generic.ErrConcurrentModification)
				}
			}
		}
		if err := r.CheckInvariants(); err != nil {
			return err
		}
		v.m.certificates[r.ID] = *r
		return nil
	})
}

// NextSequence increments the counter for (courseCode, year). A missing
// counter starts from the highest sequence found in numbers already issued
// under prefix for the pair.
func (v *memCertificates) NextSequence(_ context.Context, prefix string, courseCode string, year int) (int, error) {
	var next int
	err := v.m.locked(v.inTx, func() error {
		k := seqKey{CourseCode: courseCode, Year: year}
		cur, ok := v.m.sequences[k]
		if !ok {
			base := fmt.Sprintf("%s/%d/%s/", prefix, year, courseCode)
			for _, r := range v.m.certificates {
				if !strings.HasPrefix(r.CertificateNumber, base) {
					continue
				}
				if seq := certificate.SequenceOf(r.CertificateNumber); seq > cur {
					cur = seq
				}
			}
		}
		next = cur + 1
		v.m.sequences[k] = next
		return nil
	})
	return next, err
}

func (v *memCertificates) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	return v.m.locked(v.inTx, func() error {
		v.m.audit = append(v.m.audit, e)
		return nil
	})
}

// =============================================================================
// PAYMENTS
// =============================================================================

// MemPayments implements payment.Store. The Create* methods seed data that
// other parts of the hub (checkout, registration forms) would write.
type MemPayments struct {
	m    *Memory
	inTx bool
}

func (v *MemPayments) WithTx(_ context.Context, fn func(payment.Store) error) error {
	return v.m.withTx(v.inTx, func() error {
		return fn(&MemPayments{m: v.m, inTx: true})
	})
}

func (v *MemPayments) CreatePayment(_ context.Context, p *payment.Payment) error {
	return v.m.locked(v.inTx, func() error {
		if _, ok := v.m.payments[p.Reference]; ok {
			return fmt.Errorf("payment %s: %w", p.Reference, generic.ErrConflict)
		}
		v.m.payments[p.Reference] = *p
		return nil
	})
}

func (v *MemPayments) CreateRegistration(_ context.Context, r *payment.Registration) error {
	return v.m.locked(v.inTx, func() error {
		v.m.registrations[r.ID] = *r
		return nil
	})
}

func (v *MemPayments) CreateCourse(_ context.Context, c *payment.Course) error {
	return v.m.locked(v.inTx, func() error {
		v.m.courses[c.ID] = *c
		return nil
	})
}

func (v *MemPayments) GetPayment(_ context.Context, reference string) (*payment.Payment, error) {
	var out *payment.Payment
	err := v.m.locked(v.inTx, func() error {
		p, ok := v.m.payments[reference]
		if !ok {
			return &generic.NotFoundError{Entity: "payment", ID: reference}
		}
		out = &p
		return nil
	})
	return out, err
}

func (v *MemPayments) MarkPaymentSuccess(_ context.Context, reference string, paidAt time.Time) (bool, error) {
	changed := false
	err := v.m.locked(v.inTx, func() error {
		p, ok := v.m.payments[reference]
		if !ok {
			return &generic.NotFoundError{Entity: "payment", ID: reference}
		}
		if p.Status == payment.StatusSuccess {
			return nil
		}
		p.Status = payment.StatusSuccess
		p.PaidAt = &paidAt
		v.m.payments[reference] = p
		changed = true
		return nil
	})
	return changed, err
}

func (v *MemPayments) MarkPaymentFailed(_ context.Context, reference string) (bool, error) {
	changed := false
	err := v.m.locked(v.inTx, func() error {
		p, ok := v.m.payments[reference]
		if !ok {
			return &generic.NotFoundError{Entity: "payment", ID: reference}
		}
		if p.Status != payment.StatusPending {
			return nil
		}
		p.Status = payment.StatusFailed
		v.m.payments[reference] = p
		changed = true
		return nil
	})
	return changed, err
}

func (v *MemPayments) GetRegistration(_ context.Context, id string) (*payment.Registration, error) {
	var out *payment.Registration
	err := v.m.locked(v.inTx, func() error {
		r, ok := v.m.registrations[id]
		if !ok {
			return &generic.NotFoundError{Entity: "registration", ID: id}
		}
		out = &r
		return nil
	})
	return out, err
}

func (v *MemPayments) MarkRegistrationPaid(_ context.Context, id string) error {
	return v.m.locked(v.inTx, func() error {
		r, ok := v.m.registrations[id]
		if !ok {
			return &generic.NotFoundError{Entity: "registration", ID: id}
		}
		r.PaymentStatus = payment.RegistrationPaid
		v.m.registrations[id] = r
		return nil
	})
}

func (v *MemPayments) GetCourse(_ context.Context, id string) (*payment.Course, error) {
	var out *payment.Course
	err := v.m.locked(v.inTx, func() error {
		c, ok := v.m.courses[id]
		if !ok {
			return &generic.NotFoundError{Entity: "course", ID: id}
		}
		out = &c
		return nil
	})
	return out, err
}

func (v *MemPayments) GetCourseByTitle(_ context.Context, title string) (*payment.Course, error) {
	var out *payment.Course
	err := v.m.locked(v.inTx, func() error {
		for _, c := range v.m.courses {
			if c.Title == title {
				c := c
				out = &c
				return nil
			}
		}
		return &generic.NotFoundError{Entity: "course", ID: title}
	})
	return out, err
}

func (v *MemPayments) CreateEnrollment(_ context.Context, e *payment.Enrollment) (bool, error) {
	created := false
	err := v.m.locked(v.inTx, func() error {
		k := enrollKey{MemberID: e.MemberID, CourseID: e.CourseID}
		if _, ok := v.m.enrollments[k]; ok {
			return nil
		}
		v.m.enrollments[k] = *e
		created = true
		return nil
	})
	return created, err
}

func (v *MemPayments) GetEnrollment(_ context.Context, memberID, courseID string) (*payment.Enrollment, error) {
	var out *payment.Enrollment
	err := v.m.locked(v.inTx, func() error {
		e, ok := v.m.enrollments[enrollKey{MemberID: memberID, CourseID: courseID}]
		if !ok {
			return &generic.NotFoundError{Entity: "enrollment", ID: memberID + "/" + courseID}
		}
		out = &e
		return nil
	})
	return out, err
}

// Enrollments returns every enrollment, for inspection in tests.
func (v *MemPayments) Enrollments() []payment.Enrollment {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := make([]payment.Enrollment, 0, len(v.m.enrollments))
	for _, e := range v.m.enrollments {
		out = append(out, e)
	}
	return out
}

func (v *MemPayments) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	return v.m.locked(v.inTx, func() error {
		v.m.audit = append(v.m.audit, e)
		return nil
	})
}
