package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/notify"
	"github.com/warp/hub-engine/payment"
	"github.com/warp/hub-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	testNow = time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)
	testDay = generic.NewDate(2025, time.March, 10)

	admin      = generic.Actor{ID: "admin-1", Role: generic.RoleAdmin}
	finance    = generic.Actor{ID: "fin-1", Role: generic.RoleFinance}
	superAdmin = generic.Actor{ID: "super-1", Role: generic.RoleSuperAdmin}
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func slot(startH, endH int) booking.Interval {
	return booking.NewInterval(generic.NewTimeOfDay(startH, 0), generic.NewTimeOfDay(endH, 0))
}

func newBooking(resource string, iv booking.Interval, status booking.Status) *booking.Booking {
	return &booking.Booking{
		ID:        uuid.NewString(),
		Kind:      booking.KindRoom,
		Resource:  resource,
		Date:      testDay,
		Interval:  iv,
		Status:    status,
		Guest:     booking.Guest{Name: "Ibrahim Musa", Email: "ibrahim@example.com"},
		Amount:    decimal.NewFromInt(20000),
		CreatedAt: testNow,
	}
}

func newRequest(code string) *certificate.Request {
	return &certificate.Request{
		ID:               uuid.NewString(),
		StudentName:      "Aisha Bello",
		StudentEmail:     "aisha@example.com",
		CourseTitle:      "Full Stack Web Development",
		CertificateType:  "completion",
		Status:           certificate.StatusPending,
		VerificationCode: code,
		InitiatedBy:      admin.ID,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestBookings_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := newBooking("Conference Room A", slot(10, 11), booking.StatusPendingPayment)
	expires := testNow.Add(30 * time.Minute)
	b.ExpiresAt = &expires
	b.Guest.Phone = "+2348000000000"
	b.Purpose = "Demo day prep"

	require.NoError(t, s.Bookings().Create(ctx, b))

	got, err := s.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Resource, got.Resource)
	assert.Equal(t, b.Date, got.Date)
	assert.Equal(t, b.Interval, got.Interval)
	assert.Equal(t, booking.StatusPendingPayment, got.Status)
	assert.Equal(t, "+2348000000000", got.Guest.Phone)
	assert.Empty(t, got.Guest.Organization)
	assert.True(t, b.Amount.Equal(got.Amount))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.Nil(t, got.CancelledAt)

	_, err = s.Bookings().Get(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestBookings_OverlapTrigger(t *testing.T) {
	// GIVEN: a confirmed booking 10:00-11:00
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Bookings().Create(ctx, newBooking("Meeting Pod 1", slot(10, 11), booking.StatusConfirmed)))

	// WHEN/THEN: the schema refuses an overlapping confirmed insert
	err := s.Bookings().Create(ctx, newBooking("Meeting Pod 1", booking.NewInterval(
		generic.NewTimeOfDay(10, 30), generic.NewTimeOfDay(11, 30)), booking.StatusConfirmed))
	assert.ErrorIs(t, err, booking.ErrOverlap)

	// AND: adjacent slots, other resources and holds are accepted
	assert.NoError(t, s.Bookings().Create(ctx, newBooking("Meeting Pod 1", slot(11, 12), booking.StatusConfirmed)))
	assert.NoError(t, s.Bookings().Create(ctx, newBooking("Meeting Pod 2", slot(10, 11), booking.StatusConfirmed)))
	assert.NoError(t, s.Bookings().Create(ctx, newBooking("Meeting Pod 1", slot(10, 11), booking.StatusPendingPayment)))
}

func TestBookings_ListByResource(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	bs := s.Bookings()
	require.NoError(t, bs.Create(ctx, newBooking("Conference Room B", slot(14, 15), booking.StatusConfirmed)))
	require.NoError(t, bs.Create(ctx, newBooking("Conference Room B", slot(9, 10), booking.StatusConfirmed)))
	require.NoError(t, bs.Create(ctx, newBooking("Conference Room B", slot(11, 12), booking.StatusPendingPayment)))

	all, err := bs.ListByResource(ctx, "Conference Room B", testDay)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, generic.NewTimeOfDay(9, 0), all[0].Interval.Start, "ordered by start")

	confirmed, err := bs.ListByResource(ctx, "Conference Room B", testDay, booking.StatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)

	other, err := bs.ListByResource(ctx, "Conference Room B", generic.NewDate(2025, time.March, 11))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBookings_UpdateStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := newBooking("Desk 1", slot(9, 17), booking.StatusConfirmed)
	require.NoError(t, s.Bookings().Create(ctx, b))
	at := testNow.Add(time.Hour)

	require.NoError(t, s.Bookings().UpdateStatus(ctx, b.ID, booking.StatusConfirmed, booking.StatusCancelled, at))

	got, err := s.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, at.Equal(*got.CancelledAt))

	// stale expected status
	err = s.Bookings().UpdateStatus(ctx, b.ID, booking.StatusConfirmed, booking.StatusCancelled, at)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	err = s.Bookings().UpdateStatus(ctx, "missing", booking.StatusConfirmed, booking.StatusCancelled, at)
	assert.True(t, generic.IsNotFound(err))
}

func TestBookings_ListExpiredHolds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	early := newBooking("Meeting Pod 2", slot(9, 10), booking.StatusPendingPayment)
	e1 := testNow.Add(10 * time.Minute)
	early.ExpiresAt = &e1
	late := newBooking("Meeting Pod 2", slot(10, 11), booking.StatusPendingPayment)
	e2 := testNow.Add(time.Hour)
	late.ExpiresAt = &e2
	require.NoError(t, s.Bookings().Create(ctx, early))
	require.NoError(t, s.Bookings().Create(ctx, late))

	expired, err := s.Bookings().ListExpiredHolds(ctx, testNow.Add(30*time.Minute))

	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, early.ID, expired[0].ID)
}

func TestBookingService_ConcurrentSameSlot(t *testing.T) {
	// GIVEN: the booking service on SQLite
	s := newStore(t)
	svc := booking.NewService(s.Bookings(), booking.DefaultCatalog(), booking.DefaultRatePerSeatHour, notify.Discard)
	svc.Now = func() time.Time { return testNow }

	// WHEN: ten guests race for the same slot
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		conflict int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Book(context.Background(), booking.BookInput{
				Resource: "Conference Room A",
				Date:     testDay,
				Interval: slot(15, 16),
				Guest:    booking.Guest{Name: fmt.Sprintf("Guest %d", i), Email: "guest@example.com"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case generic.IsConflict(err):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// THEN: exactly one confirmed booking exists
	assert.Equal(t, 1, won)
	assert.Equal(t, 9, conflict)
	list, err := s.Bookings().ListByResource(context.Background(), "Conference Room A", testDay, booking.StatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// =============================================================================
// CERTIFICATES
// =============================================================================

func TestCertificates_DuplicateVerificationCode(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Certificates().Create(ctx, newRequest("AAAA-BBBB-CCCC-DDDD")))

	err := s.Certificates().Create(ctx, newRequest("AAAA-BBBB-CCCC-DDDD"))

	assert.ErrorIs(t, err, certificate.ErrDuplicateVerificationCode)
}

func TestCertificates_SchemaChecks(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	approvedWithoutNumber := newRequest("1111-2222-3333-4444")
	approvedWithoutNumber.Status = certificate.StatusApproved
	assert.Error(t, s.Certificates().Create(ctx, approvedWithoutNumber))

	rejectedWithoutReason := newRequest("5555-6666-7777-8888")
	rejectedWithoutReason.Status = certificate.StatusRejected
	assert.Error(t, s.Certificates().Create(ctx, rejectedWithoutReason))
}

func TestCertificates_UpdateCompareAndSwap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := newRequest("AAAA-0000-0000-0001")
	require.NoError(t, s.Certificates().Create(ctx, r))

	at := testNow.Add(time.Hour)
	r.Status = certificate.StatusFinanceConfirmed
	r.FinanceConfirmedBy = finance.ID
	r.FinanceConfirmedAt = &at
	r.Payment = &certificate.PaymentDetails{Amount: decimal.RequireFromString("25000.50"), Method: "transfer"}
	require.NoError(t, s.Certificates().Update(ctx, r, certificate.StatusPending))

	got, err := s.Certificates().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusFinanceConfirmed, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, "25000.5", got.Payment.Amount.String())
	assert.Equal(t, "transfer", got.Payment.Method)

	// a second writer still expecting pending loses
	err = s.Certificates().Update(ctx, r, certificate.StatusPending)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
}

func TestCertificates_NextSequence(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cs := s.Certificates()

	for want := 1; want <= 3; want++ {
		got, err := cs.NextSequence(ctx, "KDIH", "FSWD", 2024)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// counters are per course and per year
	got, err := cs.NextSequence(ctx, "KDIH", "DSA", 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	got, err = cs.NextSequence(ctx, "KDIH", "FSWD", 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestCertificates_NextSequenceSeedsFromIssued(t *testing.T) {
	// GIVEN: certificates issued before the counter table existed
	s := newStore(t)
	ctx := context.Background()
	scheme := certificate.NewScheme("KDIH", "secret")
	for i, seq := range []int{3, 7} {
		r := newRequest(fmt.Sprintf("AAAA-BBBB-CCCC-000%d", i))
		r.Status = certificate.StatusApproved
		r.CertificateNumber = scheme.Compose(2024, "UIUX", seq).String()
		r.CourseCode = "UIUX"
		r.Year = 2024
		r.Sequence = seq
		require.NoError(t, s.Certificates().Create(ctx, r))
	}

	// WHEN: the first sequence is requested
	got, err := s.Certificates().NextSequence(ctx, "KDIH", "UIUX", 2024)

	// THEN: numbering continues after the highest issued one
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}

func TestCertificates_NextSequenceSeedsFromLegacyNumbers(t *testing.T) {
	// GIVEN: an issued certificate that only carries its number
	s := newStore(t)
	ctx := context.Background()
	legacy := newRequest("AAAA-BBBB-CCCC-0001")
	legacy.Status = certificate.StatusApproved
	legacy.CertificateNumber = "KDIH/2026/FSWD/005-ABCD"
	require.NoError(t, s.Certificates().Create(ctx, legacy))

	// AND: a higher number under another prefix
	other := newRequest("AAAA-BBBB-CCCC-0002")
	other.Status = certificate.StatusApproved
	other.CertificateNumber = "ACME/2026/FSWD/009-ABCD"
	require.NoError(t, s.Certificates().Create(ctx, other))

	// WHEN: the first sequence is requested
	got, err := s.Certificates().NextSequence(ctx, "KDIH", "FSWD", 2026)

	// THEN: numbering continues after the legacy number
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	// AND: later calls use the counter
	got, err = s.Certificates().NextSequence(ctx, "KDIH", "FSWD", 2026)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestCertificates_VerifyLookups(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := newRequest("ABCD-EF01-2345-6789")
	require.NoError(t, s.Certificates().Create(ctx, r))

	got, err := s.Certificates().GetByVerificationCode(ctx, "ABCD-EF01-2345-6789")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = s.Certificates().GetByVerificationCode(ctx, "0000-0000-0000-0000")
	assert.True(t, generic.IsNotFound(err))

	list, err := s.Certificates().List(ctx, certificate.ListFilter{Status: certificate.StatusPending})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.Certificates().List(ctx, certificate.ListFilter{Status: certificate.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWorkflow_ConcurrentApprovals(t *testing.T) {
	// GIVEN: ten finance-confirmed requests for one course
	s := newStore(t)
	ctx := context.Background()
	alloc := certificate.NewAllocator(certificate.NewScheme("KDIH", "secret"))
	wf := certificate.NewWorkflow(s.Certificates(), alloc, notify.Discard)

	var ids []string
	for i := 0; i < 10; i++ {
		req, err := wf.Create(ctx, admin, certificate.CreateInput{
			StudentName:  fmt.Sprintf("Student %d", i),
			StudentEmail: "student@example.com",
			CourseTitle:  "Data Science & Analytics",
		})
		require.NoError(t, err)
		_, err = wf.ConfirmFinance(ctx, finance, req.ID, nil)
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	// WHEN: all are approved at once
	var wg sync.WaitGroup
	numbers := make([]string, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			out, err := wf.Approve(ctx, superAdmin, id)
			if assert.NoError(t, err) {
				numbers[i] = out.CertificateNumber
			}
		}(i, id)
	}
	wg.Wait()

	// THEN: every number is distinct and valid
	seen := make(map[string]bool)
	for _, n := range numbers {
		assert.True(t, alloc.Scheme.IsValidNumber(n), n)
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayments_ReconcileOnSQLite(t *testing.T) {
	// GIVEN: a pending payment for a registered course
	s := newStore(t)
	ctx := context.Background()
	ps := s.Payments()
	require.NoError(t, ps.CreateCourse(ctx, &payment.Course{ID: "c1", Title: "Full Stack Web Development", DurationWeeks: 12}))
	require.NoError(t, ps.CreateRegistration(ctx, &payment.Registration{ID: "42", MemberID: "m1", CourseID: "c1", PaymentStatus: payment.RegistrationPending}))
	require.NoError(t, ps.CreatePayment(ctx, &payment.Payment{
		Reference: "ref-1",
		MemberID:  "m1",
		Amount:    decimal.NewFromInt(150000),
		Status:    payment.StatusPending,
		Metadata:  map[string]any{payment.MetaEnrollmentID: 42},
		CreatedAt: testNow,
	}))
	rec := payment.NewReconciler(ps, nil)

	// WHEN: the success is reported three times
	for i := 0; i < 3; i++ {
		_, err := rec.Reconcile(ctx, "ref-1")
		require.NoError(t, err)
	}

	// THEN: one enrollment, registration paid, one audit entry
	n, err := ps.CountEnrollments(ctx, "m1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reg, err := ps.GetRegistration(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, payment.RegistrationPaid, reg.PaymentStatus)

	p, err := ps.GetPayment(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)
	assert.NotNil(t, p.PaidAt)

	entries, err := s.Query(ctx, generic.AuditFilter{EntityType: "payment", EntityID: "ref-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPayments_MarkFailedKeepsSuccess(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ps := s.Payments()
	require.NoError(t, ps.CreatePayment(ctx, &payment.Payment{
		Reference: "ref-2", Amount: decimal.NewFromInt(1), Status: payment.StatusSuccess, CreatedAt: testNow,
	}))

	changed, err := ps.MarkPaymentFailed(ctx, "ref-2")

	require.NoError(t, err)
	assert.False(t, changed)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAudit_QueryFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	entries := []generic.AuditEntry{
		{ID: "a1", Timestamp: testNow, ActorID: "admin-1", ActorRole: generic.RoleAdmin,
			Action: generic.AuditCertificateCreated, EntityType: "certificate", EntityID: "c1"},
		{ID: "a2", Timestamp: testNow.Add(time.Minute), ActorID: "fin-1", ActorRole: generic.RoleFinance,
			Action: generic.AuditFinanceConfirmed, EntityType: "certificate", EntityID: "c1",
			Details: map[string]any{"amount": "25000"}},
		{ID: "a3", Timestamp: testNow.Add(2 * time.Minute), ActorID: "system",
			Action: generic.AuditBookingCreated, EntityType: "booking", EntityID: "b1"},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	all, err := s.Query(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID, "newest first")

	cert, err := s.Query(ctx, generic.AuditFilter{EntityType: "certificate", EntityID: "c1"})
	require.NoError(t, err)
	assert.Len(t, cert, 2)

	byActor, err := s.Query(ctx, generic.AuditFilter{ActorID: "fin-1"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "25000", byActor[0].Details["amount"])
	assert.Equal(t, generic.RoleFinance, byActor[0].ActorRole)

	byAction, err := s.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{
		generic.AuditCertificateCreated, generic.AuditBookingCreated,
	}})
	require.NoError(t, err)
	assert.Len(t, byAction, 2)

	from := testNow.Add(30 * time.Second)
	to := testNow.Add(90 * time.Second)
	window, err := s.Query(ctx, generic.AuditFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "a2", window[0].ID)

	limited, err := s.Query(ctx, generic.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPing(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
