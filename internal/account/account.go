// Package account manages user records outside of reward settlement:
// registration with a referrer and level changes.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/reconcile"
)

var (
	// ErrUnknownReferrer is returned when a new user names a referrer that
	// does not exist.
	ErrUnknownReferrer = errors.New("unknown referrer")

	// ErrSelfReferral is returned when a user names themselves as referrer.
	ErrSelfReferral = errors.New("user cannot refer themselves")

	// ErrLevelDecrease is returned when a level change would lower the level.
	ErrLevelDecrease = errors.New("level cannot decrease")
)

// NewUser is a registration request. ID is generated when empty.
type NewUser struct {
	ID         string
	ReferrerID string
}

// Service creates and updates user records.
type Service struct {
	store    *ledger.Store
	hook     *reconcile.Hook
	notifier reconcile.Notifier
	ids      model.IDGenerator
	clock    model.Clock
	logger   *slog.Logger
}

// New creates a Service. notifier may be nil.
func New(store *ledger.Store, hook *reconcile.Hook, notifier reconcile.Notifier, ids model.IDGenerator, clock model.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		hook:     hook,
		notifier: notifier,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

// Create registers a user. The tier-2 edge is copied from the referrer's own
// referrer, so the referral tree is always consistent and at most two levels
// deep from any user's point of view.
func (s *Service) Create(ctx context.Context, req NewUser) (model.User, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.ids.Generate()
	}
	referrer := strings.TrimSpace(req.ReferrerID)
	if referrer == id {
		return model.User{}, fmt.Errorf("create user %s: %w", id, ErrSelfReferral)
	}

	var created model.User
	err := s.store.Update(ctx, func(tx *ledger.Tx) error {
		created = model.User{
			ID:        id,
			Level:     1,
			Status:    model.StatusNormal,
			CreatedAt: s.clock.Now(),
		}
		if referrer != "" {
			parent, err := tx.User(ctx, referrer)
			if errors.Is(err, ledger.ErrUserNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownReferrer, referrer)
			}
			if err != nil {
				return err
			}
			created.ReferredBy = parent.ID
			created.GrandReferredBy = parent.ReferredBy
		}
		return tx.InsertUser(ctx, created)
	})
	if err != nil {
		return model.User{}, fmt.Errorf("create user %s: %w", id, err)
	}

	s.logger.Info("user created", "user", id, "referred_by", created.ReferredBy, "grand_referred_by", created.GrandReferredBy)
	return created, nil
}

// SetLevel raises userID's level. Setting the current level is a no-op;
// lowering it fails with ErrLevelDecrease. Crossing the verification
// threshold schedules a sweep.
func (s *Service) SetLevel(ctx context.Context, userID string, level int) (model.User, error) {
	var (
		updated   model.User
		scheduled bool
	)
	err := s.store.Update(ctx, func(tx *ledger.Tx) error {
		before, after, err := tx.ModifyUser(ctx, userID, func(u *model.User) error {
			if level < u.Level {
				return fmt.Errorf("%w: %d -> %d", ErrLevelDecrease, u.Level, level)
			}
			u.Level = level
			return nil
		})
		if err != nil {
			return err
		}
		updated = after
		scheduled, err = s.hook.Observe(ctx, tx, userID, before.Progress(), after.Progress())
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("set level for %s: %w", userID, err)
	}

	if scheduled && s.notifier != nil {
		s.notifier.Notify(userID)
	}
	s.logger.Info("level updated", "user", userID, "level", level, "sweep_scheduled", scheduled)
	return updated, nil
}

// User returns one user record.
func (s *Service) User(ctx context.Context, id string) (model.User, error) {
	return s.store.User(ctx, id)
}

// Earnings returns the commission logs paid to id, oldest first.
func (s *Service) Earnings(ctx context.Context, id string) ([]model.CommissionLog, error) {
	if _, err := s.store.User(ctx, id); err != nil {
		return nil, err
	}
	return s.store.LogsByRecipient(ctx, id)
}

// Generated returns the commission logs id's rewards produced, oldest first.
func (s *Service) Generated(ctx context.Context, id string) ([]model.CommissionLog, error) {
	if _, err := s.store.User(ctx, id); err != nil {
		return nil, err
	}
	return s.store.LogsBySource(ctx, id)
}

// Alerts returns the security alerts recorded for id. An empty id returns
// every alert.
func (s *Service) Alerts(ctx context.Context, id string) ([]model.SecurityAlert, error) {
	return s.store.Alerts(ctx, id)
}
