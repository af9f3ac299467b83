// Package metrics defines the Prometheus collectors exported by rewardledger.
//
// Collectors are registered on the Registerer passed to New, so tests can
// use a private prometheus.NewRegistry() and read values back with
// prometheus/testutil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Settlement results.
const (
	ResultOK          = "ok"
	ResultDuplicate   = "duplicate"
	ResultUnknownUser = "unknown_user"
	ResultError       = "error"
)

// Swept log results.
const (
	SweepPromoted = "promoted"
	SweepSkipped  = "skipped"
	SweepFailed   = "failed"
)

// Sweep outcomes.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeError    = "error"
)

// Metrics groups every collector the ledger updates.
type Metrics struct {
	Settlements        *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	Commissions        *prometheus.CounterVec
	CommissionAmount   *prometheus.CounterVec
	SybilFlags         prometheus.Counter
	GuardErrors        prometheus.Counter
	SweptLogs          *prometheus.CounterVec
	Sweeps             *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "settlements_total",
			Help:      "Reward confirmations processed, by result.",
		}, []string{"result"}),
		SettlementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rewardledger",
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of one settlement including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		Commissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "commissions_total",
			Help:      "Commission logs written, by tier and status.",
		}, []string{"tier", "status"}),
		CommissionAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "commission_amount_total",
			Help:      "Commission amount written, by tier and status. Approximate (float).",
		}, []string{"tier", "status"}),
		SybilFlags: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "sybil_flags_total",
			Help:      "Accounts flagged by cluster detection.",
		}),
		GuardErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "sybil_guard_errors_total",
			Help:      "Cluster checks that failed and were skipped.",
		}),
		SweptLogs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "swept_logs_total",
			Help:      "Pending commission logs visited by verification sweeps, by result.",
		}, []string{"result"}),
		Sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewardledger",
			Name:      "sweeps_total",
			Help:      "Verification sweeps run, by outcome.",
		}, []string{"outcome"}),
	}
}

// Discard returns collectors registered on a throwaway registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// AddAmount adds a decimal amount to a float counter.
func AddAmount(c prometheus.Counter, amount decimal.Decimal) {
	c.Add(amount.InexactFloat64())
}
