package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotEligible is returned when a sweep is requested for a user that does
// not satisfy the verification predicate.
var ErrNotEligible = errors.New("user not eligible for verification sweep")

// PartialSweepError reports logs that stayed PENDING after a sweep.
// The sweep task is kept, so they are retried on the next run.
type PartialSweepError struct {
	UserID string
	LogIDs []string
	Cause  error
}

// Error implements the error interface.
func (e *PartialSweepError) Error() string {
	return fmt.Sprintf("sweep %s: %d log(s) left pending [%s]: %v",
		e.UserID, len(e.LogIDs), strings.Join(e.LogIDs, ", "), e.Cause)
}

// Unwrap returns the last per-log failure.
func (e *PartialSweepError) Unwrap() error {
	return e.Cause
}

// IsPartial reports whether err is or wraps a PartialSweepError.
func IsPartial(err error) bool {
	var pe *PartialSweepError
	return errors.As(err, &pe)
}
