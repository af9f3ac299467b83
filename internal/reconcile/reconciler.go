package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/metrics"
	"github.com/roach88/rewardledger/internal/model"
)

// Report summarizes one sweep.
type Report struct {
	UserID string `json:"user_id"`
	// Promoted counts logs this sweep moved to AVAILABLE.
	Promoted int `json:"promoted"`
	// Skipped counts logs another sweep promoted first.
	Skipped int `json:"skipped"`
	// Failed lists logs left PENDING.
	Failed []string `json:"failed,omitempty"`
}

// Reconciler sweeps PENDING commissions generated by verified users.
type Reconciler struct {
	store     *ledger.Store
	policy    model.VerificationPolicy
	batchSize int
	clock     model.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// inflight coalesces concurrent sweeps of the same user.
	inflight singleflight.Group
}

// New creates a Reconciler. batchSize bounds the logs promoted per
// transaction.
func New(store *ledger.Store, policy model.VerificationPolicy, batchSize int, clock model.Clock, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	if batchSize < 1 {
		batchSize = 1
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Reconciler{
		store:     store,
		policy:    policy,
		batchSize: batchSize,
		clock:     clock,
		logger:    logger,
		metrics:   m,
	}
}

// Sweep promotes every PENDING log whose source is userID and then marks
// userID verified.
//
// Returns ErrNotEligible if userID does not satisfy the predicate, and a
// *PartialSweepError if some logs could not be promoted. In the partial case
// the user is still marked verified and the returned Report is complete.
func (r *Reconciler) Sweep(ctx context.Context, userID string) (Report, error) {
	v, err, _ := r.inflight.Do(userID, func() (any, error) {
		return r.sweep(ctx, userID)
	})
	rep, _ := v.(Report)
	return rep, err
}

func (r *Reconciler) sweep(ctx context.Context, userID string) (Report, error) {
	rep := Report{UserID: userID}

	user, err := r.store.User(ctx, userID)
	if err != nil {
		r.metrics.Sweeps.WithLabelValues(metrics.OutcomeError).Inc()
		return rep, fmt.Errorf("sweep %s: %w", userID, err)
	}
	if !r.policy.Verified(user.Progress()) {
		return rep, fmt.Errorf("%w: %s (level %d, ads %d)", ErrNotEligible, userID, user.Level, user.AdWatchCount)
	}

	var (
		cursor  int64
		lastErr error
	)
	for {
		var page []model.CommissionLog
		err := r.store.View(ctx, func(tx *ledger.Tx) error {
			var err error
			page, err = tx.PendingLogsBySource(ctx, userID, cursor, r.batchSize)
			return err
		})
		if err != nil {
			r.metrics.Sweeps.WithLabelValues(metrics.OutcomeError).Inc()
			return rep, fmt.Errorf("sweep %s: %w", userID, err)
		}
		if len(page) == 0 {
			break
		}
		cursor = page[len(page)-1].Seq

		if err := r.promoteBatch(ctx, page, &rep); err != nil {
			lastErr = err
		}
		if len(page) < r.batchSize {
			break
		}
	}

	if err := r.markVerified(ctx, userID); err != nil {
		r.metrics.Sweeps.WithLabelValues(metrics.OutcomeError).Inc()
		return rep, err
	}

	r.metrics.SweptLogs.WithLabelValues(metrics.SweepPromoted).Add(float64(rep.Promoted))
	r.metrics.SweptLogs.WithLabelValues(metrics.SweepSkipped).Add(float64(rep.Skipped))
	r.metrics.SweptLogs.WithLabelValues(metrics.SweepFailed).Add(float64(len(rep.Failed)))

	if len(rep.Failed) > 0 {
		r.metrics.Sweeps.WithLabelValues(metrics.OutcomePartial).Inc()
		r.logger.Warn("verification sweep incomplete",
			"user", userID,
			"promoted", rep.Promoted,
			"failed", len(rep.Failed),
		)
		return rep, &PartialSweepError{UserID: userID, LogIDs: rep.Failed, Cause: lastErr}
	}

	r.metrics.Sweeps.WithLabelValues(metrics.OutcomeComplete).Inc()
	r.logger.Info("verification sweep complete",
		"user", userID,
		"promoted", rep.Promoted,
		"skipped", rep.Skipped,
	)
	return rep, nil
}

// promoteBatch promotes page in one transaction. If that fails, each log is
// retried in its own transaction and failures are appended to rep.Failed.
// Returns the last per-log error, or nil.
func (r *Reconciler) promoteBatch(ctx context.Context, page []model.CommissionLog, rep *Report) error {
	now := r.clock.Now()

	var promoted, skipped int
	err := r.store.Update(ctx, func(tx *ledger.Tx) error {
		promoted, skipped = 0, 0
		for _, l := range page {
			ok, err := promote(ctx, tx, l, now)
			if err != nil {
				return err
			}
			if ok {
				promoted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err == nil {
		rep.Promoted += promoted
		rep.Skipped += skipped
		return nil
	}

	r.logger.Warn("sweep batch failed, retrying per log",
		"source", page[0].SourceID,
		"logs", len(page),
		"error", err,
	)

	var lastErr error
	for _, l := range page {
		var ok bool
		err := r.store.Update(ctx, func(tx *ledger.Tx) error {
			var err error
			ok, err = promote(ctx, tx, l, now)
			return err
		})
		switch {
		case err != nil:
			lastErr = err
			rep.Failed = append(rep.Failed, l.ID)
			r.logger.Error("commission log left pending",
				"log", l.ID,
				"recipient", l.RecipientID,
				"amount", l.Amount.String(),
				"error", err,
			)
		case ok:
			rep.Promoted++
		default:
			rep.Skipped++
		}
	}
	return lastErr
}

// promote flips l to AVAILABLE and moves its amount from the recipient's
// pending balance to the spendable balance. Reports false, with no effect,
// if l was no longer PENDING.
func promote(ctx context.Context, tx *ledger.Tx, l model.CommissionLog, now time.Time) (bool, error) {
	ok, err := tx.MarkLogAvailable(ctx, l.ID, now)
	if err != nil || !ok {
		return false, err
	}

	_, _, err = tx.ModifyUser(ctx, l.RecipientID, func(u *model.User) error {
		u.PendingBalance = u.PendingBalance.Sub(l.Amount)
		u.Balance = u.Balance.Add(l.Amount)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("promote log %s: %w", l.ID, err)
	}
	return true, nil
}

func (r *Reconciler) markVerified(ctx context.Context, userID string) error {
	err := r.store.Update(ctx, func(tx *ledger.Tx) error {
		_, _, err := tx.ModifyUser(ctx, userID, func(u *model.User) error {
			u.IsVerifiedHuman = true
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("sweep %s: mark verified: %w", userID, err)
	}
	return nil
}

// IsRetryable reports whether a failed sweep should stay queued.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotEligible) && !errors.Is(err, ledger.ErrUserNotFound)
}
