// Package sybil detects clusters of accounts claiming rewards from the same
// network address or device within a short window.
//
// Detection never blocks a reward. A flagged account keeps earning; its
// withdrawals are paused and an alert is written for manual review.
package sybil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/metrics"
	"github.com/roach88/rewardledger/internal/model"
)

// Guard evaluates cluster membership inside a settlement transaction.
type Guard struct {
	threshold   int
	window      time.Duration
	poolUnknown bool
	ids         model.IDGenerator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	counter     Counter
}

// Counter counts accounts other than excludeID that were active at a key
// after since, stopping at limit.
type Counter interface {
	CountByIP(ctx context.Context, tx *ledger.Tx, ip, excludeID string, since time.Time, limit int) (int, error)
	CountByDevice(ctx context.Context, tx *ledger.Tx, deviceID, excludeID string, since time.Time, limit int) (int, error)
}

// ledgerCounter counts against the users table inside the settlement tx.
type ledgerCounter struct{}

func (ledgerCounter) CountByIP(ctx context.Context, tx *ledger.Tx, ip, excludeID string, since time.Time, limit int) (int, error) {
	return tx.CountRecentByIP(ctx, ip, excludeID, since, limit)
}

func (ledgerCounter) CountByDevice(ctx context.Context, tx *ledger.Tx, deviceID, excludeID string, since time.Time, limit int) (int, error) {
	return tx.CountRecentByDevice(ctx, deviceID, excludeID, since, limit)
}

// Option configures a Guard.
type Option func(*Guard)

// WithCounter replaces the cluster counter.
func WithCounter(c Counter) Option {
	return func(g *Guard) { g.counter = c }
}

// Verdict is the outcome of one inspection. Cluster sizes include the
// inspected account and are capped at threshold+1.
type Verdict struct {
	IPCluster     int
	DeviceCluster int
	Flagged       bool
}

// New creates a Guard from configuration.
func New(cfg config.SybilConfig, ids model.IDGenerator, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Guard {
	if m == nil {
		m = metrics.Discard()
	}
	g := &Guard{
		threshold:   cfg.Threshold,
		window:      cfg.Window,
		poolUnknown: cfg.PoolUnknown,
		ids:         ids,
		logger:      logger,
		metrics:     m,
		counter:     ledgerCounter{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the identity under which a client is clustered and stored.
// Missing fields stay empty (never clustered) unless pooling is enabled, in
// which case they map to the UnknownIP / UnknownDevice sentinels.
func (g *Guard) Key(id model.Identity) model.Identity {
	if !g.poolUnknown {
		return id
	}
	if id.IP == "" {
		id.IP = model.UnknownIP
	}
	if id.DeviceID == "" {
		id.DeviceID = model.UnknownDevice
	}
	return id
}

// Inspect counts recently active accounts sharing the identity of userID and
// flags userID if either cluster exceeds the threshold. The flag and its
// alert are written through tx, so they commit or abort with the settlement.
func (g *Guard) Inspect(ctx context.Context, tx *ledger.Tx, userID string, id model.Identity, now time.Time) (Verdict, error) {
	key := g.Key(id)
	since := now.Add(-g.window)

	var v Verdict
	if key.IP != "" {
		others, err := g.counter.CountByIP(ctx, tx, key.IP, userID, since, g.threshold)
		if err != nil {
			return Verdict{}, fmt.Errorf("sybil inspect: %w", err)
		}
		v.IPCluster = others + 1
	}
	if key.DeviceID != "" {
		others, err := g.counter.CountByDevice(ctx, tx, key.DeviceID, userID, since, g.threshold)
		if err != nil {
			return Verdict{}, fmt.Errorf("sybil inspect: %w", err)
		}
		v.DeviceCluster = others + 1
	}

	if v.IPCluster <= g.threshold && v.DeviceCluster <= g.threshold {
		return v, nil
	}
	v.Flagged = true

	_, _, err := tx.ModifyUser(ctx, userID, func(u *model.User) error {
		u.Status = model.StatusFlagged
		u.WithdrawalPaused = true
		return nil
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("sybil flag: %w", err)
	}

	if err := g.alert(ctx, tx, userID, key, model.AlertClusterSybil, now); err != nil {
		return Verdict{}, err
	}

	g.metrics.SybilFlags.Inc()
	g.logger.Warn("cluster detected",
		"user", userID,
		"ip", key.IP,
		"device", key.DeviceID,
		"ip_cluster", v.IPCluster,
		"device_cluster", v.DeviceCluster,
	)
	return v, nil
}

// Check runs Inspect and absorbs its failure. A failed inspection is logged
// and recorded as a GUARD_ERROR alert when possible; the reward proceeds.
func (g *Guard) Check(ctx context.Context, tx *ledger.Tx, userID string, id model.Identity, now time.Time) Verdict {
	v, err := g.Inspect(ctx, tx, userID, id, now)
	if err == nil {
		return v
	}

	g.metrics.GuardErrors.Inc()
	g.logger.Error("sybil guard failed, reward proceeds unchecked", "user", userID, "error", err)
	if alertErr := g.alert(ctx, tx, userID, g.Key(id), model.AlertGuardError, now); alertErr != nil {
		g.logger.Error("failed to record guard error alert", "user", userID, "error", alertErr)
	}
	return Verdict{}
}

func (g *Guard) alert(ctx context.Context, tx *ledger.Tx, userID string, key model.Identity, kind string, now time.Time) error {
	err := tx.InsertAlert(ctx, model.SecurityAlert{
		ID:        g.ids.Generate(),
		UserID:    userID,
		IP:        key.IP,
		DeviceID:  key.DeviceID,
		Type:      kind,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("sybil alert: %w", err)
	}
	return nil
}
