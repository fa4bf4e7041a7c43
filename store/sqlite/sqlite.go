/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements booking.Store, certificate.Store, payment.Store and
  generic.AuditLog on one SQLite database. The invariants the services rely
  on are enforced by the schema itself, so a bug or a race in application
  code cannot write a state the domain forbids.

INTERFACES IMPLEMENTED:
  booking.Store:     Bookings()      (bookings.go)
  certificate.Store: Certificates()  (certificates.go)
  payment.Store:     Payments()      (payments.go)
  generic.AuditLog:  Store itself    (audit.go)

KEY TABLES:
  bookings:              Room and desk bookings
  certificates:          Certificate requests and issued certificates
  certificate_sequences: Per (course_code, year) number counter
  payments:              Gateway transactions
  course_registrations:  Course applications awaiting payment
  courses:               Course catalog
  enrollments:           Course access per member
  audit_log:             Who did what when (append-only)

SCHEMA GUARDS:
  - trg_bookings_no_overlap: BEFORE INSERT trigger raising 'booking_overlap'
    when a confirmed booking overlaps another on the same resource and date
  - certificates CHECK: status = 'approved' <=> certificate_number IS NOT NULL
  - certificates CHECK: status = 'rejected' <=> rejection_reason IS NOT NULL
  - UNIQUE certificate_number, UNIQUE verification_code
  - UNIQUE (member_id, course_id) on enrollments

CONCURRENCY:
  One sync.Mutex serialises write transactions in-process, and transactions
  begin IMMEDIATE (_txlock=immediate) so the write lock is taken up front
  rather than on first write. A check-then-insert inside WithTx therefore
  cannot interleave with another writer. The pool holds a single
  connection, which also keeps ":memory:" databases coherent.

  Inside a transaction every statement goes through the *sql.Tx. Touching
  s.db there would wait forever for the one connection the tx holds.

TIME FORMAT:
  Instants are stored as fixed-width UTC text (timeLayout) so string order
  matches time order in SQL comparisons.

USAGE:
  store, err := sqlite.New("./data/hub.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := booking.NewService(store.Bookings(), catalog, rate, sink)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed width so lexicographic order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store owns the database handle. Domain views share its mutex.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already-open handle without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Bookings
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('room', 'desk')),
		resource TEXT NOT NULL,
		booking_date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('confirmed', 'pending_payment', 'cancelled')),
		guest_name TEXT NOT NULL,
		guest_email TEXT NOT NULL,
		guest_phone TEXT,
		guest_organization TEXT,
		member_id TEXT,
		purpose TEXT,
		amount TEXT NOT NULL,
		expires_at TEXT,
		created_at TEXT NOT NULL,
		cancelled_at TEXT,
		CHECK (start_time < end_time)
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_resource_date
		ON bookings(resource, booking_date, status);
	CREATE INDEX IF NOT EXISTS idx_bookings_hold_expiry
		ON bookings(expires_at) WHERE status = 'pending_payment';

	-- CRITICAL: no two confirmed bookings overlap on [start, end)
	CREATE TRIGGER IF NOT EXISTS trg_bookings_no_overlap
	BEFORE INSERT ON bookings
	WHEN NEW.status = 'confirmed'
	BEGIN
		SELECT RAISE(ABORT, 'booking_overlap')
		WHERE EXISTS (
			SELECT 1 FROM bookings
			WHERE resource = NEW.resource
			  AND booking_date = NEW.booking_date
			  AND status = 'confirmed'
			  AND start_time < NEW.end_time
			  AND NEW.start_time < end_time
		);
	END;

	-- Certificates
	CREATE TABLE IF NOT EXISTS certificates (
		id TEXT PRIMARY KEY,
		student_name TEXT NOT NULL,
		student_email TEXT NOT NULL,
		course_id TEXT,
		course_title TEXT NOT NULL,
		certificate_type TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'finance_confirmed', 'approved', 'rejected')),
		certificate_number TEXT UNIQUE,
		verification_code TEXT NOT NULL UNIQUE,
		course_code TEXT,
		year INTEGER,
		sequence INTEGER,
		rejection_reason TEXT,
		payment_amount TEXT,
		payment_method TEXT,
		payment_reference TEXT,
		payment_notes TEXT,
		initiated_by TEXT NOT NULL,
		finance_confirmed_by TEXT,
		finance_confirmed_at TEXT,
		approved_by TEXT,
		approved_at TEXT,
		rejected_by TEXT,
		rejected_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK ((status = 'approved') = (certificate_number IS NOT NULL)),
		CHECK ((status = 'rejected') = (rejection_reason IS NOT NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_certificates_status
		ON certificates(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_certificates_code_year
		ON certificates(course_code, year);

	CREATE TABLE IF NOT EXISTS certificate_sequences (
		course_code TEXT NOT NULL,
		year INTEGER NOT NULL,
		last_sequence INTEGER NOT NULL,
		PRIMARY KEY (course_code, year)
	);

	-- Payments and enrollment
	CREATE TABLE IF NOT EXISTS payments (
		reference TEXT PRIMARY KEY,
		member_id TEXT,
		amount TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
		metadata TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS course_registrations (
		id TEXT PRIMARY KEY,
		member_id TEXT,
		email TEXT,
		course_id TEXT,
		course_title TEXT,
		payment_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		duration_weeks INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_courses_title ON courses(title);

	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		enrolled_at TEXT NOT NULL,
		UNIQUE (member_id, course_id)
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_role TEXT,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_type, entity_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view is the state every domain store shares: which querier to use and
// whether it is already inside a transaction.
type view struct {
	s    *Store
	q    querier
	inTx bool
}

func (s *Store) root() view { return view{s: s, q: s.db} }

// withTx runs fn in a transaction, or directly when v is already in one.
func (v view) withTx(ctx context.Context, fn func(view) error) error {
	if v.inTx {
		return fn(v)
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	sqlTx, err := v.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(view{s: v.s, q: sqlTx, inTx: true}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isOverlapError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "booking_overlap")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
