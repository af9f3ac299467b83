package harness

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Outcomes records every executed action in order. A repeated confirm
	// step contributes one entry per execution.
	Outcomes []StepOutcome `json:"outcomes"`

	// Rewards is the sum of base rewards credited by the run.
	Rewards decimal.Decimal `json:"rewards"`

	// Snapshot is the final ledger state.
	Snapshot Snapshot `json:"snapshot"`
}

// StepOutcome is the outcome of one executed action.
type StepOutcome struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	User    string `json:"user,omitempty"`
	Outcome string `json:"outcome"`
}

// Snapshot is the ledger state compared against golden files.
// Slices are ordered (users by id, logs and alerts by insertion) so the
// JSON encoding is stable.
type Snapshot struct {
	Scenario   string       `json:"scenario"`
	Users      []UserState  `json:"users"`
	Logs       []LogState   `json:"logs"`
	Alerts     []AlertState `json:"alerts"`
	SweepTasks []string     `json:"sweep_tasks"`
}

// UserState is the snapshot view of a user.
type UserState struct {
	ID                   string          `json:"id"`
	Balance              decimal.Decimal `json:"balance"`
	PendingBalance       decimal.Decimal `json:"pending_balance"`
	TotalNetworkEarnings decimal.Decimal `json:"total_network_earnings"`
	Level                int             `json:"level"`
	AdWatchCount         int64           `json:"ad_watch_count"`
	Status               string          `json:"status"`
	WithdrawalPaused     bool            `json:"withdrawal_paused"`
	IsVerifiedHuman      bool            `json:"is_verified_human"`
}

// LogState is the snapshot view of a commission log.
type LogState struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Recipient string          `json:"recipient"`
	Tier      int             `json:"tier"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// AlertState is the snapshot view of a security alert.
type AlertState struct {
	ID     string `json:"id"`
	User   string `json:"user"`
	Type   string `json:"type"`
	IP     string `json:"ip,omitempty"`
	Device string `json:"device,omitempty"`
}

func newResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []StepOutcome{},
		Rewards:  decimal.Zero,
	}
}

// addError records a failure and marks the result as failed.
func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
