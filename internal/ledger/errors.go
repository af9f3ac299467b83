package ledger

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose id is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrConflict marks lock contention on the database. Update retries it.
	ErrConflict = errors.New("transaction conflict")

	// ErrInvariant is returned when a mutation would break a ledger invariant
	// (negative balance, reverted verification, decreasing level).
	ErrInvariant = errors.New("ledger invariant violated")
)

// IsConflict reports whether err is lock contention that is safe to retry.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// wrapConflict tags SQLite busy/locked errors with ErrConflict so callers
// outside this package can match them without importing the driver.
func wrapConflict(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || !IsConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConflict, err)
}
