package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_BundledScenariosPass(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_RecordsOutcomesPerRepeat(t *testing.T) {
	s := mustParse(t, `
name: repeat
description: repeated confirmations
users:
  - id: P
  - id: S
    referrer: P
steps:
  - confirm:
      user: S
      reward: INSTANT
      repeat: 3
    expect: ok
  - sweep: S
assertions:
  - type: log_count
    where: {recipient: P, status: PENDING}
    count: 3
`)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Outcomes, 4)
	for i := range 3 {
		assert.Equal(t, StepOutcome{Step: 0, Action: "confirm", User: "S", Outcome: OutcomeOK}, result.Outcomes[i])
	}
	assert.Equal(t, StepOutcome{Step: 1, Action: "sweep", User: "S", Outcome: OutcomeNotEligible}, result.Outcomes[3])
	assert.Equal(t, "0.15", result.Rewards.String())
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: wrong expectation
users:
  - id: A
steps:
  - confirm:
      user: nobody
    expect: ok
assertions:
  - type: conservation
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected ok, got unknown_user")
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	s := mustParse(t, `
name: failing
description: assertions that do not hold
users:
  - id: A
steps:
  - confirm:
      user: A
assertions:
  - type: user
    user: A
    expect:
      balance: "1.00"
  - type: user
    user: missing
    expect:
      level: "1"
  - type: alert_count
    count: 1
  - type: sweep_tasks
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "user A balance: expected 1.00, got 0.01")
	assert.Contains(t, result.Errors[1], "user missing: not found")
	assert.Contains(t, result.Errors[2], "expected 1, got 0")
	assert.Contains(t, result.Errors[3], "sweep_tasks: expected 1, got 0")
}

func TestRun_DecimalFieldsCompareNumerically(t *testing.T) {
	s := mustParse(t, `
name: numeric
description: trailing zeros do not matter
users:
  - id: A
steps:
  - confirm:
      user: A
      reward: INSTANT
assertions:
  - type: user
    user: A
    expect:
      balance: "0.0500"
      withdrawal_paused: "FALSE"
      level: "1"
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ConfigOverridesApply(t *testing.T) {
	s := mustParse(t, `
name: small_threshold
description: a threshold of one flags the second account on an address
config:
  sybil_threshold: 1
users:
  - id: A
  - id: B
steps:
  - confirm: {user: A, ip: 192.0.2.1}
    expect: ok
  - confirm: {user: B, ip: 192.0.2.1}
    expect: flagged
assertions:
  - type: alert_count
    user: B
    alert: CLUSTER_SYBIL
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_PoolUnknownClustersAnonymousClients(t *testing.T) {
	s := mustParse(t, `
name: pooled
description: clients without identity share the unknown bucket
config:
  sybil_threshold: 1
  pool_unknown: true
users:
  - id: A
  - id: B
steps:
  - confirm: {user: A}
    expect: ok
  - confirm: {user: B}
    expect: flagged
assertions:
  - type: alert_count
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Snapshot.Alerts, 1)
	assert.Equal(t, "0.0.0.0", result.Snapshot.Alerts[0].IP)
	assert.Equal(t, "unknown", result.Snapshot.Alerts[0].Device)
}

func TestRun_SetLevelDecreaseIsError(t *testing.T) {
	s := mustParse(t, `
name: level_down
description: levels never decrease
users:
  - id: A
    level: 3
steps:
  - set_level: {user: A, level: 2}
    expect: error
assertions:
  - type: user
    user: A
    expect: {level: "3"}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidConfigIsSetupError(t *testing.T) {
	s := mustParse(t, `
name: bad_config
description: zero batch size
config:
  batch_size: 0
users:
  - id: A
steps:
  - drain: true
assertions:
  - type: sweep_tasks
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestCheckConservation_DetectsLeak(t *testing.T) {
	r := newResult()
	r.Snapshot = Snapshot{
		Users: []UserState{{ID: "A", Balance: mustDec("0.02")}},
	}
	r.Rewards = mustDec("0.01")

	err := checkConservation(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users hold 0.02, issued 0.01")
}

func TestCheckConservation_PendingMismatch(t *testing.T) {
	r := newResult()
	r.Snapshot = Snapshot{
		Users: []UserState{
			{ID: "P", PendingBalance: mustDec("0.005"), TotalNetworkEarnings: mustDec("0.005")},
			{ID: "S", Balance: mustDec("0.05")},
		},
		Logs: []LogState{{ID: "l1", Source: "S", Recipient: "P", Tier: 1, Amount: mustDec("0.005"), Status: "AVAILABLE"}},
	}
	r.Rewards = mustDec("0.05")

	err := checkConservation(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "P pending_balance 0.005, pending logs 0")
}
