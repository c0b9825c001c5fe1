package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewContentID returns a canonical lowercase hyphenated version-4 UUID.
// Content identifiers are immutable once assigned; uniqueness is
// probabilistic by construction.
func NewContentID() string {
	return uuid.NewString()
}

// NewRequestID returns a lexicographically sortable identifier used to
// correlate log and audit lines belonging to one HTTP request.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
