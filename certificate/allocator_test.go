package certificate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/generic"
)

// counterSource hands out 1, 2, 3, ... per (course code, year).
type counterSource struct {
	mu   sync.Mutex
	last map[string]int
	err  error
}

func newCounterSource() *counterSource {
	return &counterSource{last: make(map[string]int)}
}

func (c *counterSource) NextSequence(_ context.Context, prefix, courseCode string, year int) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := prefix + "/" + courseCode + "/" + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	c.last[key]++
	return c.last[key], nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestAllocator() *certificate.Allocator {
	a := certificate.NewAllocator(certificate.NewScheme("KDIH", testSecret))
	a.Now = fixedClock(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC))
	return a
}

func TestAllocate_FirstNumber(t *testing.T) {
	alloc, err := newTestAllocator().Allocate(context.Background(), newCounterSource(), "Full Stack Web Development")
	require.NoError(t, err)

	assert.Equal(t, "FSWD", alloc.CourseCode)
	assert.Equal(t, 2024, alloc.Year)
	assert.Equal(t, 1, alloc.Sequence)
	assert.Equal(t, "KDIH/2024/FSWD/001-"+alloc.Checksum, alloc.CertificateNumber)
	assert.True(t, certificate.ValidateChecksum(alloc.CertificateNumber, testSecret))
	assert.True(t, certificate.IsValidVerificationCode(alloc.VerificationCode))
	assert.Equal(t, 2024, alloc.IssueDate.Year())
}

func TestAllocate_PunctuatedTitle(t *testing.T) {
	// GIVEN: an unmapped title whose initials are too short
	a := newTestAllocator()

	// WHEN: a number is allocated for it
	alloc, err := a.Allocate(context.Background(), newCounterSource(), "E-Commerce")
	require.NoError(t, err)

	// THEN: the code drops punctuation and the number validates
	assert.Equal(t, "ECO", alloc.CourseCode)
	assert.Equal(t, "KDIH/2024/ECO/001-"+alloc.Checksum, alloc.CertificateNumber)
	assert.True(t, certificate.ValidateChecksum(alloc.CertificateNumber, testSecret))
	assert.True(t, a.Scheme.IsValidNumber(alloc.CertificateNumber))
}

func TestAllocate_SequentialPerCourse(t *testing.T) {
	// GIVEN: one sequence source shared by two courses
	a := newTestAllocator()
	seq := newCounterSource()
	ctx := context.Background()

	// WHEN: allocating three FSWD numbers with a DSA number in between
	var fswd []int
	for i := 0; i < 3; i++ {
		alloc, err := a.Allocate(ctx, seq, "Full Stack Web Development")
		require.NoError(t, err)
		fswd = append(fswd, alloc.Sequence)

		if i == 0 {
			dsa, err := a.Allocate(ctx, seq, "Data Science & Analytics")
			require.NoError(t, err)
			assert.Equal(t, 1, dsa.Sequence)
		}
	}

	// THEN: FSWD counts 1, 2, 3 regardless of the other course
	assert.Equal(t, []int{1, 2, 3}, fswd)
}

func TestAllocate_EveryNumberValidates(t *testing.T) {
	a := newTestAllocator()
	seq := newCounterSource()

	for i := 0; i < 20; i++ {
		alloc, err := a.Allocate(context.Background(), seq, "Cybersecurity Fundamentals")
		require.NoError(t, err)
		assert.True(t, a.Scheme.IsValidNumber(alloc.CertificateNumber), alloc.CertificateNumber)
	}
}

func TestAllocate_EmptyTitle(t *testing.T) {
	_, err := newTestAllocator().Allocate(context.Background(), newCounterSource(), "   ")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestAllocate_SequenceErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	seq := newCounterSource()
	seq.err = boom

	_, err := newTestAllocator().Allocate(context.Background(), seq, "Python Programming")
	assert.ErrorIs(t, err, boom)
}
