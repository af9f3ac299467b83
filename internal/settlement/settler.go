// Package settlement credits users for confirmed rewarded actions.
//
// A settlement is one ledger transaction: the Sybil check, the base reward,
// the referral commissions and the verification hook all commit together or
// not at all.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/rewardledger/internal/commission"
	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/metrics"
	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/reconcile"
	"github.com/roach88/rewardledger/internal/sybil"
)

// Receipt describes a committed settlement.
type Receipt struct {
	UserID         string                `json:"user_id"`
	RewardType     string                `json:"reward_type"`
	Amount         decimal.Decimal       `json:"amount"`
	Duplicate      bool                  `json:"duplicate,omitempty"`
	Flagged        bool                  `json:"flagged,omitempty"`
	Verdict        sybil.Verdict         `json:"-"`
	Commissions    []model.CommissionLog `json:"commissions"`
	SweepScheduled bool                  `json:"sweep_scheduled,omitempty"`
	SettledAt      time.Time             `json:"settled_at"`
}

// Settler applies reward confirmations to the ledger.
type Settler struct {
	store    *ledger.Store
	cfg      *config.Config
	guard    *sybil.Guard
	router   *commission.Router
	hook     *reconcile.Hook
	notifier reconcile.Notifier
	clock    model.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Settler.
type Option func(*Settler)

// WithNotifier sets the receiver of committed verification transitions,
// normally the reconcile Worker.
func WithNotifier(n reconcile.Notifier) Option {
	return func(s *Settler) {
		s.notifier = n
	}
}

// WithMetrics sets the collectors updated by the Settler.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Settler) {
		s.metrics = m
	}
}

// New creates a Settler.
func New(store *ledger.Store, cfg *config.Config, guard *sybil.Guard, router *commission.Router, hook *reconcile.Hook, clock model.Clock, logger *slog.Logger, opts ...Option) *Settler {
	s := &Settler{
		store:  store,
		cfg:    cfg,
		guard:  guard,
		router: router,
		hook:   hook,
		clock:  clock,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	return s
}

// Settle credits c.UserID with the reward for c.RewardType.
//
// Inside one transaction it runs the Sybil check on the confirmation's
// identity, adds the reward to the balance, increments the ad counter,
// refreshes heartbeat and identity, pays commissions to the referral chain
// and enqueues a verification sweep if the user just became verified. Any
// failure rolls everything back and is returned as *Error.
//
// A confirmation with a ConfirmationID that was already settled returns a
// Receipt with Duplicate set and changes nothing.
func (s *Settler) Settle(ctx context.Context, c model.Confirmation) (Receipt, error) {
	start := time.Now()
	receipt, err := s.settle(ctx, c)
	s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil && receipt.Duplicate:
		s.metrics.Settlements.WithLabelValues(metrics.ResultDuplicate).Inc()
		s.logger.Info("duplicate confirmation ignored", "user", c.UserID, "confirmation", c.ConfirmationID)
		return receipt, nil
	case err == nil:
		s.metrics.Settlements.WithLabelValues(metrics.ResultOK).Inc()
	case errors.Is(err, ErrUnknownUser):
		s.metrics.Settlements.WithLabelValues(metrics.ResultUnknownUser).Inc()
		s.logger.Warn("confirmation for unknown user rejected", "user", c.UserID)
		return Receipt{}, err
	default:
		s.metrics.Settlements.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("settlement failed", "user", c.UserID, "reward_type", c.RewardType, "error", err)
		return Receipt{}, err
	}

	s.router.Observe(receipt.Commissions)
	if receipt.SweepScheduled && s.notifier != nil {
		s.notifier.Notify(receipt.UserID)
	}

	s.logger.Debug("reward settled",
		"user", receipt.UserID,
		"reward_type", receipt.RewardType,
		"amount", receipt.Amount.String(),
		"commissions", len(receipt.Commissions),
		"flagged", receipt.Flagged,
	)
	return receipt, nil
}

func (s *Settler) settle(ctx context.Context, c model.Confirmation) (Receipt, error) {
	userID := strings.TrimSpace(c.UserID)
	if userID == "" {
		return Receipt{}, &Error{Code: CodeInvalid, Err: fmt.Errorf("%w: user id is required", ErrInvalidConfirmation)}
	}

	rewardType := strings.ToUpper(strings.TrimSpace(c.RewardType))
	amount := s.cfg.RewardAmount(rewardType)
	identity := model.NewIdentity(c.IP, c.DeviceID)
	now := s.clock.Now()

	var receipt Receipt
	err := s.store.Update(ctx, func(tx *ledger.Tx) error {
		// fn may run again after a lock conflict; start from scratch.
		receipt = Receipt{
			UserID:     userID,
			RewardType: rewardType,
			Amount:     amount,
			SettledAt:  now,
		}

		source, err := tx.User(ctx, userID)
		if errors.Is(err, ledger.ErrUserNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		if err != nil {
			return err
		}

		if c.ConfirmationID != "" {
			claimed, err := tx.ClaimConfirmation(ctx, c.ConfirmationID, userID, now)
			if err != nil {
				return err
			}
			if !claimed {
				receipt.Duplicate = true
				return nil
			}
		}

		receipt.Verdict = s.guard.Check(ctx, tx, userID, identity, now)
		receipt.Flagged = receipt.Verdict.Flagged
		key := s.guard.Key(identity)

		before, after, err := tx.ModifyUser(ctx, userID, func(u *model.User) error {
			u.Balance = u.Balance.Add(amount)
			u.AdWatchCount++
			u.LastHeartbeat = now
			u.LastIP = key.IP
			u.DeviceID = key.DeviceID
			return nil
		})
		if err != nil {
			return err
		}

		// Commission status is decided by the record as it was before this
		// reward was applied.
		receipt.Commissions, err = s.router.Route(ctx, tx, source, amount, now)
		if err != nil {
			return err
		}

		receipt.SweepScheduled, err = s.hook.Observe(ctx, tx, userID, before.Progress(), after.Progress())
		return err
	})
	if err == nil {
		return receipt, nil
	}

	if errors.Is(err, ErrUnknownUser) {
		return Receipt{}, &Error{Code: CodeUnknownUser, UserID: userID, Err: err}
	}
	return Receipt{}, &Error{Code: CodeLedger, UserID: userID, Err: err}
}
