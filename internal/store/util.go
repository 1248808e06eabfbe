package store

import (
	"time"

	"github.com/google/uuid"
)

// nowUnix returns the current time as seconds since the Unix epoch, the
// timestamp representation every table uses.
func nowUnix() int64 {
	return time.Now().Unix()
}

// newID mints an opaque identifier for a lesson or checkpoint record.
func newID() string {
	return uuid.NewString()
}
