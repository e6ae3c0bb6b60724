// Package ids generates record identifiers and timestamps.
//
// Identifiers are UUIDv7 strings: the leading 48 bits are the Unix
// millisecond and google/uuid fills the following bits with a monotonic
// sequence, so string order equals creation order within a process.
// Timestamps use a fixed-width RFC3339 layout so they sort as strings too.
package ids

import (
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the fixed-width timestamp layout used for every record.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Now is a package-level variable for testability.
var Now = time.Now

// New returns a new sortable identifier.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than handing callers an error for an id.
		return uuid.NewString()
	}
	return id.String()
}

// Timestamp returns the current time in TimeLayout.
func Timestamp() string {
	return Format(Now())
}

// Format renders t in TimeLayout (UTC).
func Format(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Parse accepts TimeLayout and any RFC3339 variant.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
