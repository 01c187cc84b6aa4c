package csvdb

import (
	"crypto/sha1" //nolint:gosec // G505: identifiers, not security.
	"encoding/hex"
	"time"
)

const (
	// ShortIDLen is the length of identifiers shown in URLs.
	ShortIDLen = 10

	// idTimeFormat has microseconds so two ids derived from the same seeds
	// within one second still differ.
	idTimeFormat = "2006-01-02 15:04:05.000000"
)

// NewID derives a 40 character lowercase hex identifier from the
// concatenation of seeds and now.
//
// Identical seeds at the identical microsecond produce identical ids.
// Nothing here checks for collisions; callers that need uniqueness check
// against their table and retry with an extra seed.
func NewID(now time.Time, seeds ...string) string {
	h := sha1.New() //nolint:gosec // G401: see import.
	for _, s := range seeds {
		h.Write([]byte(s))
	}
	h.Write([]byte(now.Format(idTimeFormat)))
	return hex.EncodeToString(h.Sum(nil))
}

// NewShortID is NewID truncated to ShortIDLen characters.
//
// Truncation to 40 bits makes a collision likely after about a million ids.
func NewShortID(now time.Time, seeds ...string) string {
	return NewID(now, seeds...)[:ShortIDLen]
}
