package harness

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

type fieldKind int

const (
	kindDecimal fieldKind = iota
	kindInt
	kindBool
	kindString
)

// userFields are the user fields a user assertion may check.
var userFields = map[string]fieldKind{
	"balance":                kindDecimal,
	"pending_balance":        kindDecimal,
	"total_network_earnings": kindDecimal,
	"level":                  kindInt,
	"ad_watch_count":         kindInt,
	"status":                 kindString,
	"withdrawal_paused":      kindBool,
	"is_verified_human":      kindBool,
}

// evaluate checks one assertion against the result of a run.
func evaluate(a Assertion, r *Result) error {
	switch a.Type {
	case AssertUser:
		return checkUser(a, r.Snapshot)
	case AssertLogCount:
		return checkLogCount(a, r.Snapshot)
	case AssertAlertCount:
		return checkAlertCount(a, r.Snapshot)
	case AssertSweepTasks:
		if got := len(r.Snapshot.SweepTasks); got != a.Count {
			return fmt.Errorf("sweep_tasks: expected %d, got %d", a.Count, got)
		}
		return nil
	case AssertConservation:
		return checkConservation(r)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func findUser(snap Snapshot, id string) (UserState, bool) {
	for _, u := range snap.Users {
		if u.ID == id {
			return u, true
		}
	}
	return UserState{}, false
}

func checkUser(a Assertion, snap Snapshot) error {
	u, ok := findUser(snap, a.User)
	if !ok {
		return fmt.Errorf("user %s: not found", a.User)
	}

	actual := map[string]string{
		"balance":                u.Balance.String(),
		"pending_balance":        u.PendingBalance.String(),
		"total_network_earnings": u.TotalNetworkEarnings.String(),
		"level":                  strconv.Itoa(u.Level),
		"ad_watch_count":         strconv.FormatInt(u.AdWatchCount, 10),
		"status":                 u.Status,
		"withdrawal_paused":      strconv.FormatBool(u.WithdrawalPaused),
		"is_verified_human":      strconv.FormatBool(u.IsVerifiedHuman),
	}

	for field, want := range a.Expect {
		got := actual[field]
		equal, err := fieldEqual(userFields[field], want, got)
		if err != nil {
			return fmt.Errorf("user %s %s: %w", a.User, field, err)
		}
		if !equal {
			return fmt.Errorf("user %s %s: expected %s, got %s", a.User, field, want, got)
		}
	}
	return nil
}

func fieldEqual(kind fieldKind, want, got string) (bool, error) {
	switch kind {
	case kindDecimal:
		w, err := decimal.NewFromString(want)
		if err != nil {
			return false, fmt.Errorf("expected value %q is not a decimal", want)
		}
		g, err := decimal.NewFromString(got)
		if err != nil {
			return false, err
		}
		return w.Equal(g), nil
	case kindBool:
		w, err := strconv.ParseBool(want)
		if err != nil {
			return false, fmt.Errorf("expected value %q is not a bool", want)
		}
		return strconv.FormatBool(w) == got, nil
	default:
		return want == got, nil
	}
}

func checkLogCount(a Assertion, snap Snapshot) error {
	count := 0
	for _, l := range snap.Logs {
		if logMatches(l, a.Where) {
			count++
		}
	}
	if count != a.Count {
		return fmt.Errorf("log_count %v: expected %d, got %d", a.Where, a.Count, count)
	}
	return nil
}

func logMatches(l LogState, where map[string]string) bool {
	for key, want := range where {
		var got string
		switch key {
		case "source":
			got = l.Source
		case "recipient":
			got = l.Recipient
		case "tier":
			got = strconv.Itoa(l.Tier)
		case "status":
			got = l.Status
		}
		if got != want {
			return false
		}
	}
	return true
}

func checkAlertCount(a Assertion, snap Snapshot) error {
	count := 0
	for _, alert := range snap.Alerts {
		if a.User != "" && alert.User != a.User {
			continue
		}
		if a.Alert != "" && alert.Type != a.Alert {
			continue
		}
		count++
	}
	if count != a.Count {
		return fmt.Errorf("alert_count user=%q type=%q: expected %d, got %d", a.User, a.Alert, a.Count, count)
	}
	return nil
}

// checkConservation verifies that no money was created or lost:
//
//	sum(balance + pending_balance) == rewards + sum(commission amounts)
//
// and, per user, that pending_balance equals the PENDING logs paid to it
// and total_network_earnings equals every log paid to it.
func checkConservation(r *Result) error {
	held := decimal.Zero
	for _, u := range r.Snapshot.Users {
		held = held.Add(u.Balance).Add(u.PendingBalance)
	}

	issued := r.Rewards
	pending := map[string]decimal.Decimal{}
	earned := map[string]decimal.Decimal{}
	for _, l := range r.Snapshot.Logs {
		issued = issued.Add(l.Amount)
		earned[l.Recipient] = earned[l.Recipient].Add(l.Amount)
		if l.Status == "PENDING" {
			pending[l.Recipient] = pending[l.Recipient].Add(l.Amount)
		}
	}

	if !held.Equal(issued) {
		return fmt.Errorf("conservation: users hold %s, issued %s", held, issued)
	}
	for _, u := range r.Snapshot.Users {
		if !u.PendingBalance.Equal(pending[u.ID]) {
			return fmt.Errorf("conservation: %s pending_balance %s, pending logs %s", u.ID, u.PendingBalance, pending[u.ID])
		}
		if !u.TotalNetworkEarnings.Equal(earned[u.ID]) {
			return fmt.Errorf("conservation: %s total_network_earnings %s, logs %s", u.ID, u.TotalNetworkEarnings, earned[u.ID])
		}
	}
	return nil
}
