/*
number.go - Certificate number and verification code formats

FORMATS:
  Certificate number:  PREFIX/YEAR/COURSE_CODE/SEQ-CHECKSUM
                       e.g. KDIH/2024/FSWD/001-A7X2
                       SEQ is zero-padded to at least 3 digits.
  Verification code:   XXXX-XXXX-XXXX-XXXX (upper-case hex)

  Both formats must be reproduced byte-for-byte: certificates issued before
  this service carry them and are still verified against them.

TWO IDENTIFIERS:
  The certificate number is auditable (sequence per course and year) and
  forgery resistant (checksum). The verification code is an unrelated random
  token used for public lookup, so the sequence never has to be exposed to
  verify a certificate.

SEE ALSO:
  - checksum.go: Suffix computation
  - allocator.go: Sequence allocation
*/
package certificate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPrefix is the issuer prefix of every certificate number.
const DefaultPrefix = "KDIH"

// Number is a parsed certificate number.
type Number struct {
	Prefix     string
	Year       int
	CourseCode string
	Sequence   int
	Checksum   string
}

// Base returns the number without its checksum suffix.
func (n Number) Base() string {
	return fmt.Sprintf("%s/%d/%s/%03d", n.Prefix, n.Year, n.CourseCode, n.Sequence)
}

func (n Number) String() string {
	return n.Base() + "-" + n.Checksum
}

// Scheme composes, parses and validates numbers for one issuer prefix and secret.
type Scheme struct {
	Prefix      string
	Checksummer Checksummer
	pattern     *regexp.Regexp
}

func NewScheme(prefix, secret string) *Scheme {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Scheme{
		Prefix:      prefix,
		Checksummer: NewChecksummer(secret),
		pattern:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `/\d{4}/[A-Z0-9]{2,7}/\d{3,5}-[A-Z0-9]{4}$`),
	}
}

// Compose builds a checksummed number.
func (s *Scheme) Compose(year int, courseCode string, sequence int) Number {
	n := Number{Prefix: s.Prefix, Year: year, CourseCode: courseCode, Sequence: sequence}
	n.Checksum = s.Checksummer.Checksum(n.Base())
	return n
}

// LikePattern returns the SQL LIKE pattern matching every number for a
// course and year.
func (s *Scheme) LikePattern(courseCode string, year int) string {
	return fmt.Sprintf("%s/%d/%s/%%", s.Prefix, year, courseCode)
}

// Parse splits a number into its components. It does not verify the checksum.
func (s *Scheme) Parse(number string) (Number, error) {
	n, err := ParseNumber(number)
	if err != nil {
		return Number{}, err
	}
	if n.Prefix != s.Prefix {
		return Number{}, fmt.Errorf("certificate number %q: unknown prefix %q", number, n.Prefix)
	}
	return n, nil
}

// MatchesFormat checks the number's shape only.
func (s *Scheme) MatchesFormat(number string) bool {
	return s.pattern.MatchString(number)
}

// IsValidNumber reports whether number has the issued format and a valid checksum.
func (s *Scheme) IsValidNumber(number string) bool {
	return s.MatchesFormat(number) && s.Checksummer.Validate(number)
}

// ParseNumber splits PREFIX/YEAR/CODE/SEQ-CHECKSUM into a Number.
func ParseNumber(number string) (Number, error) {
	main := strings.Split(number, "-")
	if len(main) != 2 {
		return Number{}, fmt.Errorf("certificate number %q: expected one checksum separator", number)
	}
	parts := strings.Split(main[0], "/")
	if len(parts) != 4 {
		return Number{}, fmt.Errorf("certificate number %q: expected 4 segments, got %d", number, len(parts))
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Number{}, fmt.Errorf("certificate number %q: bad year: %w", number, err)
	}
	seq, err := strconv.Atoi(parts[3])
	if err != nil {
		return Number{}, fmt.Errorf("certificate number %q: bad sequence: %w", number, err)
	}
	return Number{
		Prefix:     parts[0],
		Year:       year,
		CourseCode: parts[2],
		Sequence:   seq,
		Checksum:   main[1],
	}, nil
}

// SequenceOf extracts the numeric sequence segment of a stored number,
// returning 0 when it cannot be parsed.
func SequenceOf(number string) int {
	parts := strings.Split(number, "/")
	if len(parts) < 4 {
		return 0
	}
	seq, err := strconv.Atoi(strings.Split(parts[3], "-")[0])
	if err != nil {
		return 0
	}
	return seq
}

// =============================================================================
// VERIFICATION CODE
// =============================================================================

var verificationCodePattern = regexp.MustCompile(`^[A-F0-9]{4}-[A-F0-9]{4}-[A-F0-9]{4}-[A-F0-9]{4}$`)

// NewVerificationCode returns a random XXXX-XXXX-XXXX-XXXX code from 12
// bytes of crypto/rand output.
func NewVerificationCode() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	code := strings.ToUpper(hex.EncodeToString(buf))[:16]
	return code[0:4] + "-" + code[4:8] + "-" + code[8:12] + "-" + code[12:16], nil
}

// IsValidVerificationCode checks the code format only.
func IsValidVerificationCode(code string) bool {
	return verificationCodePattern.MatchString(code)
}
