// Package idgen generates sortable, collision-resistant identifiers used
// for diagnostics correlation and for external-facing run/attempt
// handles that need to be orderable without a database round trip.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new monotonically-increasing ULID string.
//
// ULID is used instead of a plain UUID (as google/uuid still is for
// lower-stakes diagnostics correlation ids, see diagnostics.CorrelationID)
// because join-barrier and attempt identifiers benefit from lexicographic
// sortability matching creation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
