package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rewardledger/internal/model"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithRetry(3, time.Millisecond))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestUser creates a user with minimal required fields.
func insertTestUser(t *testing.T, s *Store, id, referredBy, grandReferredBy string) {
	t.Helper()
	err := s.Update(context.Background(), func(tx *Tx) error {
		return tx.InsertUser(context.Background(), model.User{
			ID:              id,
			Level:           1,
			ReferredBy:      referredBy,
			GrandReferredBy: grandReferredBy,
			Status:          model.StatusNormal,
			CreatedAt:       testEpoch,
		})
	})
	require.NoError(t, err)
}
