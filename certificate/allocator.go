/*
allocator.go - Certificate number allocation

PURPOSE:
  Turns a course title into the next certificate number for that course and
  the current year. The sequence comes from the store's atomic counter, so
  the allocator itself holds no state and never retries: a lost race is the
  caller's concern (see Workflow.Approve).

FLOW:
  title -> CourseCode -> NextSequence(prefix, code, year) -> Compose -> checksum

SEE ALSO:
  - number.go: Number formats
  - workflow.go: Calls Allocate inside the approval transaction
*/
package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/hub-engine/generic"
)

// Allocation is everything assigned to a certificate at approval time.
type Allocation struct {
	CertificateNumber string
	VerificationCode  string
	CourseCode        string
	Year              int
	Sequence          int
	Checksum          string
	IssueDate         time.Time
}

type Allocator struct {
	Scheme *Scheme
	Now    func() time.Time
}

func NewAllocator(scheme *Scheme) *Allocator {
	return &Allocator{Scheme: scheme, Now: time.Now}
}

// NextSequence returns the next sequence for the course code in year.
func (a *Allocator) NextSequence(ctx context.Context, seq SequenceSource, courseCode string, year int) (int, error) {
	n, err := seq.NextSequence(ctx, a.Scheme.Prefix, courseCode, year)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s/%d: %w", courseCode, year, err)
	}
	return n, nil
}

// Allocate reserves the next number for courseTitle and generates a fresh
// verification code alongside it.
func (a *Allocator) Allocate(ctx context.Context, seq SequenceSource, courseTitle string) (Allocation, error) {
	if strings.TrimSpace(courseTitle) == "" {
		return Allocation{}, generic.Invalid("course_title", "required")
	}

	now := a.Now()
	year := now.Year()
	code := CourseCode(courseTitle)

	sequence, err := a.NextSequence(ctx, seq, code, year)
	if err != nil {
		return Allocation{}, err
	}

	number := a.Scheme.Compose(year, code, sequence)

	verification, err := NewVerificationCode()
	if err != nil {
		return Allocation{}, err
	}

	return Allocation{
		CertificateNumber: number.String(),
		VerificationCode:  verification,
		CourseCode:        code,
		Year:              year,
		Sequence:          sequence,
		Checksum:          number.Checksum,
		IssueDate:         now,
	}, nil
}
