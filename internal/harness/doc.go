// Package harness runs ledger scenarios written in YAML and compares their
// final state against golden snapshots.
//
// # Scenario Format
//
//	name: instant_reward_pending
//	description: "An unverified user's reward pays pending commissions"
//	config:
//	  sybil_threshold: 10
//	users:
//	  - id: P2
//	  - id: P1
//	    referrer: P2
//	  - id: C
//	    referrer: P1
//	steps:
//	  - confirm: { user: C, reward: INSTANT, device: dev-1 }
//	    expect: ok
//	  - advance: 30m
//	  - set_level: { user: C, level: 5 }
//	  - drain: true
//	assertions:
//	  - type: user
//	    user: P1
//	    expect: { pending_balance: "0.005" }
//	  - type: log_count
//	    where: { source: C, status: PENDING }
//	    count: 2
//	  - type: conservation
//
// Users are created through the account service in order, so tier-2 edges
// are derived the same way production derives them. A user's optional level
// is applied with SetLevel after creation.
//
// # Step Types
//
//   - confirm: settle a reward confirmation, optionally repeated
//   - advance: move the scenario clock forward
//   - set_level: raise a user's level
//   - drain: run every queued verification sweep once
//   - sweep: run a verification sweep for one user directly
//
// # Assertion Types
//
//   - user: compare fields of one user record
//   - log_count: count commission logs matching source, recipient, tier, status
//   - alert_count: count security alerts for a user and/or type
//   - sweep_tasks: count queued verification sweeps
//   - conservation: every credited amount is accounted for
//
// # Determinism
//
// Each run uses a fresh in-memory database, a clock frozen at
// testutil.Epoch and sequential ids ("log-0001", "alert-0001"), so the same
// scenario always produces byte-identical snapshots.
package harness
