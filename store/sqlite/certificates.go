package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/generic"
)

// CertificateStore implements certificate.Store.
type CertificateStore struct {
	view
}

func (s *Store) Certificates() *CertificateStore { return &CertificateStore{view: s.root()} }

func (c *CertificateStore) WithTx(ctx context.Context, fn func(certificate.Store) error) error {
	return c.withTx(ctx, func(v view) error {
		return fn(&CertificateStore{view: v})
	})
}

func (c *CertificateStore) Create(ctx context.Context, r *certificate.Request) error {
	return c.withTx(ctx, func(v view) error {
		args := append([]any{r.ID}, certificateValues(r)...)
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO certificates
			(id, student_name, student_email, course_id, course_title, certificate_type,
			 status, certificate_number, verification_code, course_code, year, sequence,
			 rejection_reason, payment_amount, payment_method, payment_reference, payment_notes,
			 initiated_by, finance_confirmed_by, finance_confirmed_at, approved_by, approved_at,
			 rejected_by, rejected_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err != nil {
			if isUniqueConstraintError(err) && strings.Contains(err.Error(), "verification_code") {
				return certificate.ErrDuplicateVerificationCode
			}
			if isUniqueConstraintError(err) {
				return fmt.Errorf("certificate %s: %w", r.ID, generic.ErrConflict)
			}
			return fmt.Errorf("failed to insert certificate: %w", err)
		}
		return nil
	})
}

// certificateValues lists every column after id, in table order.
func certificateValues(r *certificate.Request) []any {
	var amount, method, reference, notes sql.NullString
	if r.Payment != nil {
		amount = nullString(r.Payment.Amount.String())
		method = nullString(r.Payment.Method)
		reference = nullString(r.Payment.Reference)
		notes = nullString(r.Payment.Notes)
	}
	var year, seq sql.NullInt64
	if r.Year != 0 {
		year = sql.NullInt64{Int64: int64(r.Year), Valid: true}
	}
	if r.Sequence != 0 {
		seq = sql.NullInt64{Int64: int64(r.Sequence), Valid: true}
	}
	return []any{
		r.StudentName,
		r.StudentEmail,
		nullString(r.CourseID),
		r.CourseTitle,
		r.CertificateType,
		r.Status,
		nullString(r.CertificateNumber),
		r.VerificationCode,
		nullString(r.CourseCode),
		year,
		seq,
		nullString(r.RejectionReason),
		amount,
		method,
		reference,
		notes,
		r.InitiatedBy,
		nullString(r.FinanceConfirmedBy),
		nullTime(r.FinanceConfirmedAt),
		nullString(r.ApprovedBy),
		nullTime(r.ApprovedAt),
		nullString(r.RejectedBy),
		nullTime(r.RejectedAt),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	}
}

// Update writes r if the stored status is still expected.
func (c *CertificateStore) Update(ctx context.Context, r *certificate.Request, expected certificate.Status) error {
	return c.withTx(ctx, func(v view) error {
		args := append(certificateValues(r), r.ID, expected)
		res, err := v.q.ExecContext(ctx, `
			UPDATE certificates SET
				student_name = ?, student_email = ?, course_id = ?, course_title = ?,
				certificate_type = ?, status = ?, certificate_number = ?, verification_code = ?,
				course_code = ?, year = ?, sequence = ?, rejection_reason = ?,
				payment_amount = ?, payment_method = ?, payment_reference = ?, payment_notes = ?,
				initiated_by = ?, finance_confirmed_by = ?, finance_confirmed_at = ?,
				approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
				created_at = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, args...)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("certificate %s: %v: %w", r.ID, err, generic.ErrConcurrentModification)
			}
			return fmt.Errorf("failed to update certificate %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}

		var current string
		err = v.q.QueryRowContext(ctx, `SELECT status FROM certificates WHERE id = ?`, r.ID).Scan(&current)
		if isNoRows(err) {
			return &generic.NotFoundError{Entity: "certificate", ID: r.ID}
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("certificate %s is %s, expected %s: %w", r.ID, current, expected, generic.ErrConcurrentModification)
	})
}

// NextSequence atomically increments the (courseCode, year) counter. A
// missing counter row is seeded from the highest sequence found in the
// certificate numbers already issued under prefix for the pair. Rows written
// before the sequence column existed only carry the number, so the number is
// what gets read.
func (c *CertificateStore) NextSequence(ctx context.Context, prefix, courseCode string, year int) (int, error) {
	var next int
	err := c.withTx(ctx, func(v view) error {
		var exists int
		err := v.q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM certificate_sequences WHERE course_code = ? AND year = ?
		`, courseCode, year).Scan(&exists)
		if err != nil {
			return err
		}

		seed := 1
		if exists == 0 {
			issued, err := issuedSequence(ctx, v.q, prefix, courseCode, year)
			if err != nil {
				return err
			}
			seed = issued + 1
		}

		return v.q.QueryRowContext(ctx, `
			INSERT INTO certificate_sequences (course_code, year, last_sequence)
			VALUES (?, ?, ?)
			ON CONFLICT (course_code, year) DO UPDATE SET last_sequence = last_sequence + 1
			RETURNING last_sequence
		`, courseCode, year, seed).Scan(&next)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return next, nil
}

// issuedSequence returns the highest sequence among issued numbers for the
// pair, or 0.
func issuedSequence(ctx context.Context, q querier, prefix, courseCode string, year int) (int, error) {
	scheme := certificate.Scheme{Prefix: prefix}
	rows, err := q.QueryContext(ctx, `
		SELECT certificate_number FROM certificates
		WHERE certificate_number LIKE ?
	`, scheme.LikePattern(courseCode, year))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	highest := 0
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, err
		}
		if seq := certificate.SequenceOf(number); seq > highest {
			highest = seq
		}
	}
	return highest, rows.Err()
}

const certificateColumns = `
	id, student_name, student_email, course_id, course_title, certificate_type,
	status, certificate_number, verification_code, course_code, year, sequence,
	rejection_reason, payment_amount, payment_method, payment_reference, payment_notes,
	initiated_by, finance_confirmed_by, finance_confirmed_at, approved_by, approved_at,
	rejected_by, rejected_at, created_at, updated_at`

func (c *CertificateStore) Get(ctx context.Context, id string) (*certificate.Request, error) {
	return c.getOne(ctx, "id", id)
}

func (c *CertificateStore) GetByVerificationCode(ctx context.Context, code string) (*certificate.Request, error) {
	return c.getOne(ctx, "verification_code", code)
}

func (c *CertificateStore) GetByNumber(ctx context.Context, number string) (*certificate.Request, error) {
	return c.getOne(ctx, "certificate_number", number)
}

// getOne loads by a unique column. column is never user input.
func (c *CertificateStore) getOne(ctx context.Context, column, value string) (*certificate.Request, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE `+column+` = ?`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	list, err := scanCertificates(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &generic.NotFoundError{Entity: "certificate", ID: value}
	}
	return &list[0], nil
}

func (c *CertificateStore) List(ctx context.Context, f certificate.ListFilter) ([]certificate.Request, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return scanCertificates(rows)
}

func (c *CertificateStore) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	return c.withTx(ctx, func(v view) error { return appendAudit(ctx, v.q, e) })
}

func scanCertificates(rows *sql.Rows) ([]certificate.Request, error) {
	defer rows.Close()

	var out []certificate.Request
	for rows.Next() {
		var (
			r                                          certificate.Request
			status                                     string
			courseID, number, code, reason             sql.NullString
			amount, method, reference, notes           sql.NullString
			financeBy, financeAt, approvedBy, approved sql.NullString
			rejectedBy, rejectedAt                     sql.NullString
			year, seq                                  sql.NullInt64
			createdAt, updatedAt                       string
		)
		if err := rows.Scan(
			&r.ID, &r.StudentName, &r.StudentEmail, &courseID, &r.CourseTitle, &r.CertificateType,
			&status, &number, &r.VerificationCode, &code, &year, &seq,
			&reason, &amount, &method, &reference, &notes,
			&r.InitiatedBy, &financeBy, &financeAt, &approvedBy, &approved,
			&rejectedBy, &rejectedAt, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}

		r.Status = certificate.Status(status)
		r.CourseID = courseID.String
		r.CertificateNumber = number.String
		r.CourseCode = code.String
		r.Year = int(year.Int64)
		r.Sequence = int(seq.Int64)
		r.RejectionReason = reason.String
		r.FinanceConfirmedBy = financeBy.String
		r.FinanceConfirmedAt = parseNullTime(financeAt)
		r.ApprovedBy = approvedBy.String
		r.ApprovedAt = parseNullTime(approved)
		r.RejectedBy = rejectedBy.String
		r.RejectedAt = parseNullTime(rejectedAt)
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)

		if amount.Valid || method.Valid || reference.Valid || notes.Valid {
			r.Payment = &certificate.PaymentDetails{
				Method:    method.String,
				Reference: reference.String,
				Notes:     notes.String,
			}
			if amount.Valid {
				d, err := decimal.NewFromString(amount.String)
				if err != nil {
					return nil, fmt.Errorf("certificate %s payment amount: %w", r.ID, err)
				}
				r.Payment.Amount = d
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
