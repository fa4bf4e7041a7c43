package certificate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/certificate"
)

const testSecret = "test-secret"

// =============================================================================
// CHECKSUM
// =============================================================================

func TestChecksum_Deterministic(t *testing.T) {
	base := "KDIH/2024/FSWD/001"

	a := certificate.Checksum(base, testSecret)
	b := certificate.Checksum(base, testSecret)

	assert.Equal(t, a, b)
	assert.Len(t, a, certificate.ChecksumLength)
	assert.Regexp(t, `^[A-Z0-9]{4}$`, a)
}

func TestChecksum_DependsOnSecretAndBase(t *testing.T) {
	base := "KDIH/2024/FSWD/001"
	sum := certificate.Checksum(base, testSecret)

	// 16 bits of checksum: collisions are possible but these fixed inputs differ.
	assert.NotEqual(t, sum, certificate.Checksum(base, "other-secret"))
	assert.NotEqual(t, sum, certificate.Checksum("KDIH/2024/FSWD/002", testSecret))
}

func TestValidateChecksum(t *testing.T) {
	base := "KDIH/2024/FSWD/001"
	full := base + "-" + certificate.Checksum(base, testSecret)

	assert.True(t, certificate.ValidateChecksum(full, testSecret))
	assert.False(t, certificate.ValidateChecksum(full, "wrong-secret"))
	assert.False(t, certificate.ValidateChecksum(base, testSecret), "no suffix")
	assert.False(t, certificate.ValidateChecksum(full+"-X", testSecret), "two separators")
	assert.False(t, certificate.ValidateChecksum("", testSecret))
}

func TestValidateChecksum_MutatedSequenceFails(t *testing.T) {
	// GIVEN: a valid number
	scheme := certificate.NewScheme("KDIH", testSecret)
	n := scheme.Compose(2024, "FSWD", 7).String()
	require.True(t, certificate.ValidateChecksum(n, testSecret))

	// WHEN: one digit of the sequence is changed
	mutated := strings.Replace(n, "/007-", "/008-", 1)

	// THEN: the checksum no longer matches
	assert.False(t, certificate.ValidateChecksum(mutated, testSecret))
}

func TestChecksummer(t *testing.T) {
	c := certificate.NewChecksummer(testSecret)
	base := "KDIH/2025/DSA/010"

	assert.Equal(t, certificate.Checksum(base, testSecret), c.Checksum(base))
	assert.True(t, c.Validate(base+"-"+c.Checksum(base)))
}

// =============================================================================
// COURSE CODE
// =============================================================================

func TestCourseCode(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Full Stack Web Development", "FSWD"},
		{"Data Science & Analytics", "DSA"},
		{"Mobile App Development (Flutter)", "FLUTTER"},
		{"UI/UX Design Masterclass", "UIUX"},
		{"Advanced Robotics Engineering", "ARE"},
		{"Intro to AI and Machine Learning", "IAML"},
		{"One Two Three Four Five Six Seven", "OTTFFS"},
		{"Go", "GO"},
		{"Art", "ART"},
		{"E-Commerce", "ECO"},
		{"A/B", "AB"},
		{"A-Z", "AZ"},
		{"Éé", "XX"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, certificate.CourseCode(tt.title))
		})
	}
}

func TestCourseCode_DerivedCodesMakeValidNumbers(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)

	for _, title := range []string{"E-Commerce", "A/B", "A-Z", "Mobile App Development (Flutter)", "Go"} {
		t.Run(title, func(t *testing.T) {
			// GIVEN: a number composed from the title's code
			n := scheme.Compose(2026, certificate.CourseCode(title), 1).String()

			// THEN: it has one checksum separator, four segments, and validates
			assert.True(t, certificate.ValidateChecksum(n, testSecret), n)
			assert.True(t, scheme.IsValidNumber(n), n)
			parsed, err := scheme.Parse(n)
			require.NoError(t, err)
			assert.Equal(t, 1, parsed.Sequence)
		})
	}
}

// =============================================================================
// NUMBER FORMAT
// =============================================================================

func TestScheme_Compose(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)

	n := scheme.Compose(2024, "FSWD", 1)

	assert.Equal(t, "KDIH/2024/FSWD/001", n.Base())
	assert.Equal(t, n.Base()+"-"+certificate.Checksum(n.Base(), testSecret), n.String())
	assert.True(t, scheme.IsValidNumber(n.String()))
}

func TestScheme_ComposeWideSequence(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)

	n := scheme.Compose(2024, "DSA", 1234)

	assert.Equal(t, "KDIH/2024/DSA/1234", n.Base())
	assert.True(t, scheme.IsValidNumber(n.String()))
}

func TestScheme_DefaultPrefix(t *testing.T) {
	scheme := certificate.NewScheme("", testSecret)
	assert.Equal(t, certificate.DefaultPrefix, scheme.Prefix)
}

func TestScheme_MatchesFormat(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)

	assert.True(t, scheme.MatchesFormat("KDIH/2024/FSWD/001-ABCD"))
	assert.False(t, scheme.MatchesFormat("XXXX/2024/FSWD/001-ABCD"), "prefix")
	assert.False(t, scheme.MatchesFormat("KDIH/24/FSWD/001-ABCD"), "year")
	assert.False(t, scheme.MatchesFormat("KDIH/2024/fswd/001-ABCD"), "lower-case code")
	assert.False(t, scheme.MatchesFormat("KDIH/2024/FSWD/01-ABCD"), "short sequence")
	assert.False(t, scheme.MatchesFormat("KDIH/2024/FSWD/001-ABC"), "short checksum")
	assert.False(t, scheme.MatchesFormat("KDIH/2024/FSWD/001"), "no checksum")
}

func TestScheme_IsValidNumber_WrongChecksum(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)
	n := scheme.Compose(2024, "FSWD", 1)

	other := certificate.NewScheme("KDIH", "another-secret")
	assert.True(t, other.MatchesFormat(n.String()))
	assert.False(t, other.IsValidNumber(n.String()))
}

func TestParseNumber(t *testing.T) {
	n, err := certificate.ParseNumber("KDIH/2024/FSWD/012-A7X2")
	require.NoError(t, err)

	assert.Equal(t, certificate.Number{
		Prefix:     "KDIH",
		Year:       2024,
		CourseCode: "FSWD",
		Sequence:   12,
		Checksum:   "A7X2",
	}, n)

	_, err = certificate.ParseNumber("KDIH/2024/FSWD/012")
	assert.Error(t, err)
	_, err = certificate.ParseNumber("KDIH/2024/012-A7X2")
	assert.Error(t, err)
	_, err = certificate.ParseNumber("KDIH/YYYY/FSWD/012-A7X2")
	assert.Error(t, err)
}

func TestScheme_ParseRejectsForeignPrefix(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)

	_, err := scheme.Parse("ABCD/2024/FSWD/001-A7X2")
	assert.Error(t, err)
}

func TestSequenceOf(t *testing.T) {
	assert.Equal(t, 12, certificate.SequenceOf("KDIH/2024/FSWD/012-A7X2"))
	assert.Equal(t, 1000, certificate.SequenceOf("KDIH/2024/FSWD/1000-A7X2"))
	assert.Equal(t, 0, certificate.SequenceOf("garbage"))
	assert.Equal(t, 0, certificate.SequenceOf("KDIH/2024/FSWD/abc-A7X2"))
}

func TestScheme_LikePattern(t *testing.T) {
	scheme := certificate.NewScheme("KDIH", testSecret)
	assert.Equal(t, "KDIH/2024/FSWD/%", scheme.LikePattern("FSWD", 2024))
}

// =============================================================================
// VERIFICATION CODE
// =============================================================================

func TestNewVerificationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := certificate.NewVerificationCode()
		require.NoError(t, err)
		assert.True(t, certificate.IsValidVerificationCode(code), code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestIsValidVerificationCode(t *testing.T) {
	assert.True(t, certificate.IsValidVerificationCode("A1B2-C3D4-E5F6-0789"))
	assert.False(t, certificate.IsValidVerificationCode("a1b2-c3d4-e5f6-0789"))
	assert.False(t, certificate.IsValidVerificationCode("A1B2C3D4E5F60789"))
	assert.False(t, certificate.IsValidVerificationCode("G1B2-C3D4-E5F6-0789"))
}
