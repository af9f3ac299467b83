package commission

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/metrics"
	"github.com/roach88/rewardledger/internal/model"
	tu "github.com/roach88/rewardledger/internal/testutil"
	"github.com/roach88/rewardledger/internal/testutil/ledgertest"
)

func newRouter(m *metrics.Metrics) *Router {
	return New(config.Default(), tu.NewSequenceGenerator("log"), m)
}

// seedChain creates P2 <- P1 <- C with C at the given progress.
func seedChain(t *testing.T, st *ledger.Store, level int, ads int64) {
	t.Helper()
	ledgertest.SeedUser(t, st, model.User{ID: "P2", Level: 1})
	ledgertest.SeedUser(t, st, model.User{ID: "P1", Level: 1, ReferredBy: "P2"})
	ledgertest.SeedUser(t, st, model.User{ID: "C", Level: level, AdWatchCount: ads, ReferredBy: "P1", GrandReferredBy: "P2"})
}

func route(t *testing.T, st *ledger.Store, r *Router, sourceID, amount string) []model.CommissionLog {
	t.Helper()
	ctx := context.Background()
	var logs []model.CommissionLog
	require.NoError(t, st.Update(ctx, func(tx *ledger.Tx) error {
		src, err := tx.User(ctx, sourceID)
		if err != nil {
			return err
		}
		logs, err = r.Route(ctx, tx, src, ledgertest.Dec(amount), tu.Epoch)
		return err
	}))
	return logs
}

func TestRoute_UnverifiedSourceWritesPending(t *testing.T) {
	st := ledgertest.NewStore(t)
	seedChain(t, st, 1, 0)
	r := newRouter(nil)

	logs := route(t, st, r, "C", "0.05")
	require.Len(t, logs, 2)

	assert.Equal(t, "P1", logs[0].RecipientID)
	assert.Equal(t, model.Tier1, logs[0].Tier)
	assert.Equal(t, "0.005", logs[0].Amount.String())
	assert.Equal(t, model.LogPending, logs[0].Status)
	assert.Nil(t, logs[0].SettledAt)

	assert.Equal(t, "P2", logs[1].RecipientID)
	assert.Equal(t, model.Tier2, logs[1].Tier)
	assert.Equal(t, "0.00125", logs[1].Amount.String())
	assert.Equal(t, model.LogPending, logs[1].Status)
	assert.Less(t, logs[0].Seq, logs[1].Seq)

	p1 := ledgertest.MustUser(t, st, "P1")
	assert.Equal(t, "0", p1.Balance.String())
	assert.Equal(t, "0.005", p1.PendingBalance.String())
	assert.Equal(t, "0.005", p1.TotalNetworkEarnings.String())

	p2 := ledgertest.MustUser(t, st, "P2")
	assert.Equal(t, "0", p2.Balance.String())
	assert.Equal(t, "0.00125", p2.PendingBalance.String())
	assert.Equal(t, "0.00125", p2.TotalNetworkEarnings.String())

	stored, err := st.LogsBySource(context.Background(), "C")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "log-0001", stored[0].ID)
	assert.Equal(t, "log-0002", stored[1].ID)
}

func TestRoute_VerifiedSourceWritesAvailable(t *testing.T) {
	st := ledgertest.NewStore(t)
	seedChain(t, st, 5, 10)
	r := newRouter(nil)

	logs := route(t, st, r, "C", "0.01")
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, model.LogAvailable, l.Status)
		require.NotNil(t, l.SettledAt)
		assert.Equal(t, tu.Epoch, *l.SettledAt)
	}

	p1 := ledgertest.MustUser(t, st, "P1")
	assert.Equal(t, "0.001", p1.Balance.String())
	assert.Equal(t, "0", p1.PendingBalance.String())

	p2 := ledgertest.MustUser(t, st, "P2")
	assert.Equal(t, "0.00025", p2.Balance.String())
	assert.Equal(t, "0", p2.PendingBalance.String())
	assert.Equal(t, "0.00025", p2.TotalNetworkEarnings.String())
}

func TestRoute_BoundaryRequiresBothThresholds(t *testing.T) {
	r := newRouter(nil)
	assert.Equal(t, model.LogPending, r.Status(model.User{Level: 5, AdWatchCount: 9}))
	assert.Equal(t, model.LogPending, r.Status(model.User{Level: 4, AdWatchCount: 100}))
	assert.Equal(t, model.LogAvailable, r.Status(model.User{Level: 5, AdWatchCount: 10}))
}

func TestRoute_NoReferrerWritesNothing(t *testing.T) {
	st := ledgertest.NewStore(t)
	ledgertest.SeedUser(t, st, model.User{ID: "solo"})
	r := newRouter(nil)

	logs := route(t, st, r, "solo", "0.05")
	assert.Empty(t, logs)

	all, err := st.AllLogs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRoute_TierOneOnly(t *testing.T) {
	st := ledgertest.NewStore(t)
	ledgertest.SeedUser(t, st, model.User{ID: "P1"})
	ledgertest.SeedUser(t, st, model.User{ID: "C", ReferredBy: "P1"})
	r := newRouter(nil)

	logs := route(t, st, r, "C", "0.05")
	require.Len(t, logs, 1)
	assert.Equal(t, model.Tier1, logs[0].Tier)
}

func TestRoute_ZeroAmountWritesNothing(t *testing.T) {
	st := ledgertest.NewStore(t)
	seedChain(t, st, 1, 0)
	r := newRouter(nil)

	assert.Empty(t, route(t, st, r, "C", "0"))
	assert.True(t, ledgertest.MustUser(t, st, "P1").TotalNetworkEarnings.IsZero())
}

func TestRoute_ZeroRateTierSkipped(t *testing.T) {
	st := ledgertest.NewStore(t)
	seedChain(t, st, 1, 0)

	cfg := config.Default()
	cfg.Commission.Tier2Rate = ledgertest.Dec("0")
	r := New(cfg, tu.NewSequenceGenerator("log"), nil)

	logs := route(t, st, r, "C", "0.05")
	require.Len(t, logs, 1)
	assert.Equal(t, "P1", logs[0].RecipientID)
}

func TestRoute_UsesSnapshotNotCurrentRecord(t *testing.T) {
	st := ledgertest.NewStore(t)
	seedChain(t, st, 5, 9)
	r := newRouter(nil)
	ctx := context.Background()

	var logs []model.CommissionLog
	require.NoError(t, st.Update(ctx, func(tx *ledger.Tx) error {
		before, _, err := tx.ModifyUser(ctx, "C", func(u *model.User) error {
			u.AdWatchCount++
			return nil
		})
		if err != nil {
			return err
		}
		logs, err = r.Route(ctx, tx, before, ledgertest.Dec("0.05"), tu.Epoch)
		return err
	}))

	require.Len(t, logs, 2)
	assert.Equal(t, model.LogPending, logs[0].Status, "the reward that crosses the threshold still pays pending")
}

func TestObserve_CountsByTierAndStatus(t *testing.T) {
	m := metrics.Discard()
	r := newRouter(m)

	r.Observe([]model.CommissionLog{
		{Tier: model.Tier1, Status: model.LogPending, Amount: ledgertest.Dec("0.005")},
		{Tier: model.Tier2, Status: model.LogPending, Amount: ledgertest.Dec("0.00125")},
		{Tier: model.Tier1, Status: model.LogAvailable, Amount: ledgertest.Dec("0.001")},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commissions.WithLabelValues("1", "PENDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commissions.WithLabelValues("2", "PENDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commissions.WithLabelValues("1", "AVAILABLE")))
	assert.InDelta(t, 0.005, testutil.ToFloat64(m.CommissionAmount.WithLabelValues("1", "PENDING")), 1e-12)
}
