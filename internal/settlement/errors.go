package settlement

import (
	"errors"
	"fmt"
)

// ErrUnknownUser is returned when a confirmation names a user that does not
// exist. It is never retried.
var ErrUnknownUser = errors.New("unknown user")

// ErrInvalidConfirmation is returned for confirmations missing required fields.
var ErrInvalidConfirmation = errors.New("invalid confirmation")

// ErrorCode categorizes settlement failures.
type ErrorCode string

const (
	// CodeInvalid indicates the confirmation was malformed.
	CodeInvalid ErrorCode = "INVALID_CONFIRMATION"

	// CodeUnknownUser indicates the source user does not exist.
	CodeUnknownUser ErrorCode = "UNKNOWN_USER"

	// CodeLedger indicates the transaction failed and was rolled back.
	CodeLedger ErrorCode = "LEDGER_FAILURE"
)

// Error is a failed settlement. Nothing it touched was persisted.
type Error struct {
	Code   ErrorCode
	UserID string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s: settle reward for %s: %v", e.Code, e.UserID, e.Err)
	}
	return fmt.Sprintf("%s: settle reward: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not a settlement error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
