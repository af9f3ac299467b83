// Package ledgertest provides ledger fixtures for tests. It depends on the
// testing package and must only be imported from _test.go files.
package ledgertest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/testutil"
)

// NewStore opens a file-backed ledger in t.TempDir and closes it on cleanup.
func NewStore(t testing.TB) *ledger.Store {
	t.Helper()
	st, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), ledger.WithRetry(20, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// SeedUser inserts u directly, bypassing the account service.
// Level defaults to 1 and CreatedAt to testutil.Epoch.
func SeedUser(t testing.TB, st *ledger.Store, u model.User) {
	t.Helper()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = testutil.Epoch
	}
	ctx := context.Background()
	require.NoError(t, st.Update(ctx, func(tx *ledger.Tx) error {
		return tx.InsertUser(ctx, u)
	}))
}

// MustUser loads a user or fails the test.
func MustUser(t testing.TB, st *ledger.Store, id string) model.User {
	t.Helper()
	u, err := st.User(context.Background(), id)
	require.NoError(t, err)
	return u
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
