/*
checksum.go - Keyed checksum for certificate numbers

PURPOSE:
  Certificate numbers are sequential and therefore guessable. A short keyed
  hash suffix makes a number tamper-evident: only a holder of the secret can
  produce the suffix that matches a given base.

ALGORITHM:
  checksum = upper(hex(HMAC-SHA256(secret, base)))[0:8]
             with every char outside [A-Z0-9] replaced by 'X'
             truncated to 4 chars

  The replacement step never fires for hex output. It is kept so the
  function stays byte-compatible with numbers issued before this service.

VALIDATION:
  A full number is "<base>-<checksum>". Validation splits on '-', requires
  exactly two parts and compares in constant time. Malformed input returns
  false, never an error.

SEE ALSO:
  - number.go: Composes base strings
*/
package certificate

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ChecksumLength is the number of characters in a checksum suffix.
const ChecksumLength = 4

// Checksum computes the 4-character keyed checksum of base.
func Checksum(base, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	digest := strings.ToUpper(hex.EncodeToString(mac.Sum(nil))[:8])

	out := []byte(digest)
	for i, c := range out {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			out[i] = 'X'
		}
	}
	return string(out[:ChecksumLength])
}

// ValidateChecksum re-derives the checksum of full's base and compares it
// with the supplied suffix.
func ValidateChecksum(full, secret string) bool {
	parts := strings.Split(full, "-")
	if len(parts) != 2 {
		return false
	}
	expected := Checksum(parts[0], secret)
	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) == 1
}

// Checksummer binds a secret so callers don't pass it around.
type Checksummer struct {
	secret string
}

func NewChecksummer(secret string) Checksummer {
	return Checksummer{secret: secret}
}

func (c Checksummer) Checksum(base string) string { return Checksum(base, c.secret) }
func (c Checksummer) Validate(full string) bool   { return ValidateChecksum(full, c.secret) }
