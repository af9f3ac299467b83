// Package commission propagates a share of each reward up the two-level
// referral tree.
package commission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/metrics"
	"github.com/roach88/rewardledger/internal/model"
)

// Router computes and records tier-1 and tier-2 commissions.
type Router struct {
	tier1   decimal.Decimal
	tier2   decimal.Decimal
	policy  model.VerificationPolicy
	ids     model.IDGenerator
	metrics *metrics.Metrics
}

// New creates a Router from configuration.
func New(cfg *config.Config, ids model.IDGenerator, m *metrics.Metrics) *Router {
	if m == nil {
		m = metrics.Discard()
	}
	return &Router{
		tier1:   cfg.Commission.Tier1Rate,
		tier2:   cfg.Commission.Tier2Rate,
		policy:  cfg.VerificationPolicy(),
		ids:     ids,
		metrics: m,
	}
}

// Status returns the status commissions generated by source are written
// with: AVAILABLE once source satisfies the verification predicate,
// PENDING before.
func (r *Router) Status(source model.User) model.LogStatus {
	if r.policy.Verified(source.Progress()) {
		return model.LogAvailable
	}
	return model.LogPending
}

// Route distributes commissions on amount earned by source.
//
// source is the snapshot read at the start of the settlement, before the
// reward itself was applied, so the reward being settled never decides the
// status of its own commissions. Each ancestor is credited independently.
// A missing edge or a zero commission writes nothing. A dangling edge
// (recipient record missing) fails the whole transaction.
func (r *Router) Route(ctx context.Context, tx *ledger.Tx, source model.User, amount decimal.Decimal, now time.Time) ([]model.CommissionLog, error) {
	status := r.Status(source)

	edges := []struct {
		tier      model.Tier
		recipient string
		rate      decimal.Decimal
	}{
		{model.Tier1, source.ReferredBy, r.tier1},
		{model.Tier2, source.GrandReferredBy, r.tier2},
	}

	logs := []model.CommissionLog{}
	for _, e := range edges {
		if e.recipient == "" {
			continue
		}
		share := amount.Mul(e.rate)
		if !share.IsPositive() {
			continue
		}

		log, err := r.credit(ctx, tx, source.ID, e.recipient, e.tier, share, status, now)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}

func (r *Router) credit(ctx context.Context, tx *ledger.Tx, sourceID, recipientID string, tier model.Tier, share decimal.Decimal, status model.LogStatus, now time.Time) (model.CommissionLog, error) {
	_, _, err := tx.ModifyUser(ctx, recipientID, func(u *model.User) error {
		if status == model.LogAvailable {
			u.Balance = u.Balance.Add(share)
		} else {
			u.PendingBalance = u.PendingBalance.Add(share)
		}
		u.TotalNetworkEarnings = u.TotalNetworkEarnings.Add(share)
		return nil
	})
	if err != nil {
		return model.CommissionLog{}, fmt.Errorf("tier %d commission to %s: %w", tier, recipientID, err)
	}

	entry := model.CommissionLog{
		ID:          r.ids.Generate(),
		RecipientID: recipientID,
		SourceID:    sourceID,
		Tier:        tier,
		Amount:      share,
		Status:      status,
		CreatedAt:   now,
	}
	if status == model.LogAvailable {
		settled := now
		entry.SettledAt = &settled
	}

	entry, err = tx.InsertCommissionLog(ctx, entry)
	if err != nil {
		return model.CommissionLog{}, fmt.Errorf("tier %d commission to %s: %w", tier, recipientID, err)
	}
	return entry, nil
}

// Observe records metrics for logs written by a committed transaction.
// Metrics are only updated after commit so aborted attempts are not counted.
func (r *Router) Observe(logs []model.CommissionLog) {
	for _, l := range logs {
		tier := strconv.Itoa(int(l.Tier))
		r.metrics.Commissions.WithLabelValues(tier, string(l.Status)).Inc()
		metrics.AddAmount(r.metrics.CommissionAmount.WithLabelValues(tier, string(l.Status)), l.Amount)
	}
}
