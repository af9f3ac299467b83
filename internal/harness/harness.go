package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/rewardledger/internal/account"
	"github.com/roach88/rewardledger/internal/app"
	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/reconcile"
	"github.com/roach88/rewardledger/internal/settlement"
	"github.com/roach88/rewardledger/internal/testutil"
)

// harness holds the per-run state of one scenario.
type harness struct {
	app   *app.App
	clock *testutil.ManualClock
}

// Run executes a scenario against a fresh in-memory ledger.
//
// The returned error covers setup failures (configuration, user creation).
// Failed expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario.Config)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewManualClock(testutil.Epoch)
	a, err := app.Open(cfg, app.Options{
		Logger:   testutil.DiscardLogger(),
		Clock:    clock,
		NewIDs:   func(kind string) model.IDGenerator { return testutil.NewSequenceGenerator(kind) },
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer a.Close()

	h := &harness{app: a, clock: clock}
	ctx := context.Background()

	if err := h.createUsers(ctx, scenario.Users); err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}

	result := newResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	snap, err := takeSnapshot(ctx, a.Store, scenario.Name)
	if err != nil {
		return nil, err
	}
	result.Snapshot = snap

	for i, assertion := range scenario.Assertions {
		if err := evaluate(assertion, result); err != nil {
			result.addError("assertions[%d]: %v", i, err)
		}
	}
	return result, nil
}

func scenarioConfig(sc ScenarioConfig) (*config.Config, error) {
	cfg := config.Default()
	cfg.Database = ":memory:"

	if sc.SybilThreshold != nil {
		cfg.Sybil.Threshold = *sc.SybilThreshold
	}
	if sc.SybilWindow != "" {
		d, err := time.ParseDuration(sc.SybilWindow)
		if err != nil {
			return nil, fmt.Errorf("sybil_window: %w", err)
		}
		cfg.Sybil.Window = d
	}
	if sc.PoolUnknown != nil {
		cfg.Sybil.PoolUnknown = *sc.PoolUnknown
	}
	if sc.BatchSize != nil {
		cfg.Reconcile.BatchSize = *sc.BatchSize
	}
	if sc.MinLevel != nil {
		cfg.Verification.MinLevel = *sc.MinLevel
	}
	if sc.MinAds != nil {
		cfg.Verification.MinAds = *sc.MinAds
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

func (h *harness) createUsers(ctx context.Context, users []UserSpec) error {
	for _, u := range users {
		if _, err := h.app.Accounts.Create(ctx, account.NewUser{ID: u.ID, ReferrerID: u.Referrer}); err != nil {
			return err
		}
		if u.Level > 1 {
			if _, err := h.app.Accounts.SetLevel(ctx, u.ID, u.Level); err != nil {
				return err
			}
		}
	}
	return nil
}

// executeStep runs one step and records its outcomes. Only harness failures
// are returned; ledger failures become outcomes.
func (h *harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	record := func(action, user, outcome string) {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: index, Action: action, User: user, Outcome: outcome})
		if step.Expect != "" && outcome != step.Expect {
			result.addError("steps[%d] %s %s: expected %s, got %s", index, action, user, step.Expect, outcome)
		}
	}

	switch {
	case step.Confirm != nil:
		c := step.Confirm
		n := max(c.Repeat, 1)
		for range n {
			receipt, err := h.app.Settler.Settle(ctx, model.Confirmation{
				ConfirmationID: c.ID,
				UserID:         c.User,
				RewardType:     c.Reward,
				IP:             c.IP,
				DeviceID:       c.Device,
			})
			outcome := confirmOutcome(receipt, err)
			if outcome == OutcomeOK || outcome == OutcomeFlagged {
				result.Rewards = result.Rewards.Add(receipt.Amount)
			}
			record("confirm", c.User, outcome)
		}

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)

	case step.SetLevel != nil:
		_, err := h.app.Accounts.SetLevel(ctx, step.SetLevel.User, step.SetLevel.Level)
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeError
		}
		record("set_level", step.SetLevel.User, outcome)

	case step.Drain:
		if _, err := h.app.Worker.Drain(ctx); err != nil {
			return err
		}
		record("drain", "", OutcomeOK)

	case step.Sweep != "":
		_, err := h.app.Reconciler.Sweep(ctx, step.Sweep)
		record("sweep", step.Sweep, sweepOutcome(err))
	}
	return nil
}

func confirmOutcome(r settlement.Receipt, err error) string {
	switch {
	case errors.Is(err, settlement.ErrUnknownUser):
		return OutcomeUnknownUser
	case err != nil:
		return OutcomeError
	case r.Duplicate:
		return OutcomeDuplicate
	case r.Flagged:
		return OutcomeFlagged
	default:
		return OutcomeOK
	}
}

func sweepOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case reconcile.IsPartial(err):
		return OutcomePartial
	case errors.Is(err, reconcile.ErrNotEligible):
		return OutcomeNotEligible
	default:
		return OutcomeError
	}
}

// takeSnapshot reads the final ledger state.
func takeSnapshot(ctx context.Context, st *ledger.Store, name string) (Snapshot, error) {
	snap := Snapshot{
		Scenario:   name,
		Users:      []UserState{},
		Logs:       []LogState{},
		Alerts:     []AlertState{},
		SweepTasks: []string{},
	}

	users, err := st.Users(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot users: %w", err)
	}
	for _, u := range users {
		snap.Users = append(snap.Users, UserState{
			ID:                   u.ID,
			Balance:              u.Balance,
			PendingBalance:       u.PendingBalance,
			TotalNetworkEarnings: u.TotalNetworkEarnings,
			Level:                u.Level,
			AdWatchCount:         u.AdWatchCount,
			Status:               string(u.Status),
			WithdrawalPaused:     u.WithdrawalPaused,
			IsVerifiedHuman:      u.IsVerifiedHuman,
		})
	}

	logs, err := st.AllLogs(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot logs: %w", err)
	}
	for _, l := range logs {
		snap.Logs = append(snap.Logs, LogState{
			ID:        l.ID,
			Source:    l.SourceID,
			Recipient: l.RecipientID,
			Tier:      int(l.Tier),
			Amount:    l.Amount,
			Status:    string(l.Status),
		})
	}

	alerts, err := st.Alerts(ctx, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot alerts: %w", err)
	}
	for _, a := range alerts {
		snap.Alerts = append(snap.Alerts, AlertState{
			ID:     a.ID,
			User:   a.UserID,
			Type:   a.Type,
			IP:     a.IP,
			Device: a.DeviceID,
		})
	}

	tasks, err := st.SweepTasks(ctx, 1000)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot sweep tasks: %w", err)
	}
	for _, t := range tasks {
		snap.SweepTasks = append(snap.SweepTasks, t.UserID)
	}
	return snap, nil
}
