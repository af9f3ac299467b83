package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/model"
)

// Notifier is told about users whose sweep was enqueued by a committed
// transaction. Worker implements it.
type Notifier interface {
	Notify(userID string)
}

// Hook detects verification transitions. Every writer of level or ad watch
// count must call Observe inside its transaction.
type Hook struct {
	policy model.VerificationPolicy
	clock  model.Clock
}

// NewHook creates a Hook for the given predicate.
func NewHook(policy model.VerificationPolicy, clock model.Clock) *Hook {
	return &Hook{policy: policy, clock: clock}
}

// Policy returns the verification predicate the hook evaluates.
func (h *Hook) Policy() model.VerificationPolicy {
	return h.policy
}

// Observe compares the progress before and after a write and enqueues a
// sweep for userID on the unverified -> verified edge. It reports whether a
// task was enqueued; the caller should notify the worker after commit.
func (h *Hook) Observe(ctx context.Context, tx *ledger.Tx, userID string, old, new model.Progress) (bool, error) {
	if !h.policy.Transitioned(old, new) {
		return false, nil
	}
	if err := tx.EnqueueSweep(ctx, userID, h.clock.Now()); err != nil {
		return false, fmt.Errorf("verification hook %s: %w", userID, err)
	}
	return true, nil
}
