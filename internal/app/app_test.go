package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewardledger/internal/account"
	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/model"
	tu "github.com/roach88/rewardledger/internal/testutil"
)

func TestOpen_WiresServices(t *testing.T) {
	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "ledger.db")

	a, err := Open(cfg, Options{
		Logger: tu.DiscardLogger(),
		Clock:  tu.NewManualClock(tu.Epoch),
		NewIDs: func(kind string) model.IDGenerator { return tu.NewSequenceGenerator(kind) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx := context.Background()
	_, err = a.Accounts.Create(ctx, account.NewUser{ID: "P1"})
	require.NoError(t, err)
	_, err = a.Accounts.Create(ctx, account.NewUser{ID: "C", ReferrerID: "P1"})
	require.NoError(t, err)

	r, err := a.Settler.Settle(ctx, model.Confirmation{UserID: "C", RewardType: "INSTANT"})
	require.NoError(t, err)
	require.Len(t, r.Commissions, 1)
	assert.Equal(t, "log-0001", r.Commissions[0].ID)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["rewardledger_settlements_total"])
	assert.True(t, names["go_goroutines"])
}

func TestOpen_BadDatabasePath(t *testing.T) {
	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "missing", "dir", "ledger.db")
	_, err := Open(cfg, Options{Logger: tu.DiscardLogger()})
	assert.Error(t, err)
}
