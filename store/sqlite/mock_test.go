package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/generic"
	"github.com/warp/hub-engine/store/sqlite"
)

// Driver failures must surface to callers unchanged in kind.

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return sqlite.NewWithDB(db), mock
}

func TestMock_BookingGetError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("disk I/O error")
	mock.ExpectQuery("FROM bookings WHERE id").WithArgs("b1").WillReturnError(boom)

	_, err := s.Bookings().Get(context.Background(), "b1")

	assert.ErrorIs(t, err, boom)
	assert.False(t, generic.IsNotFound(err))
}

func TestMock_NextSequenceRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("database is locked")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM certificate_sequences").
		WithArgs("FSWD", 2024).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO certificate_sequences").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := s.Certificates().NextSequence(context.Background(), "KDIH", "FSWD", 2024)

	assert.ErrorIs(t, err, boom)
}

func TestMock_AuditAppendCommits(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.Append(context.Background(), generic.AuditEntry{
		ID:         "a1",
		ActorID:    "system",
		Action:     generic.AuditBookingCreated,
		EntityType: "booking",
		EntityID:   "b1",
		Details:    map[string]any{"resource": "Desk 1"},
	})

	assert.NoError(t, err)
}

func TestMock_PaymentLookupNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM payments WHERE reference").
		WithArgs("ref-x").
		WillReturnRows(sqlmock.NewRows([]string{"reference", "member_id", "amount", "status", "metadata", "paid_at", "created_at"}))

	_, err := s.Payments().GetPayment(context.Background(), "ref-x")

	assert.True(t, generic.IsNotFound(err))
}
