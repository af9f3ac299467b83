package cli

import (
	"errors"

	"github.com/roach88/rewardledger/internal/account"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/reconcile"
	"github.com/roach88/rewardledger/internal/settlement"
)

// errorCode maps a domain error to the code printed by the CLI.
func errorCode(err error) string {
	switch {
	case errors.Is(err, settlement.ErrUnknownUser), errors.Is(err, ledger.ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, settlement.ErrInvalidConfirmation):
		return "INVALID_CONFIRMATION"
	case errors.Is(err, ledger.ErrUserExists):
		return "USER_EXISTS"
	case errors.Is(err, account.ErrUnknownReferrer):
		return "UNKNOWN_REFERRER"
	case errors.Is(err, account.ErrSelfReferral):
		return "SELF_REFERRAL"
	case errors.Is(err, account.ErrLevelDecrease):
		return "LEVEL_DECREASE"
	case errors.Is(err, reconcile.ErrNotEligible):
		return "NOT_ELIGIBLE"
	case reconcile.IsPartial(err):
		return "PARTIAL_SWEEP"
	default:
		return "LEDGER_ERROR"
	}
}

// reject prints err in the configured format and returns an ExitError
// carrying ExitFailure.
func reject(out *OutputFormatter, message string, err error) error {
	if outErr := out.Error(errorCode(err), err.Error()); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, message, err)
}
