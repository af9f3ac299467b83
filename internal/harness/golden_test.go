package harness

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Regenerate with: go test ./internal/harness -run TestGolden -update
func TestGolden_BundledScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestGolden_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/verification_sweep.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(first.Snapshot)
	require.NoError(t, err)
	b, err := MarshalSnapshot(second.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalSnapshot_EmptyCollections(t *testing.T) {
	data, err := MarshalSnapshot(Snapshot{
		Scenario:   "empty",
		Users:      []UserState{},
		Logs:       []LogState{},
		Alerts:     []AlertState{},
		SweepTasks: []string{},
	})
	require.NoError(t, err)

	want := "{\n  \"scenario\": \"empty\",\n  \"users\": [],\n  \"logs\": [],\n  \"alerts\": [],\n  \"sweep_tasks\": []\n}\n"
	assert.Equal(t, want, string(data))
}
