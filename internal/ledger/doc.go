// Package ledger provides SQLite-backed transactional storage for the reward
// ledger.
//
// The store holds:
//   - Users: balances, progress counters, referral edges, fraud signals
//   - Commission Logs: append-only, PENDING -> AVAILABLE at most once
//   - Security Alerts: append-only fraud detection events
//   - Confirmations: claimed confirmation ids for replay protection
//   - Sweep Tasks: outbox of pending verification sweeps
//
// # Critical Patterns
//
// Serialized read-modify-write
//   - Every mutation runs inside Store.Update, which opens a BEGIN IMMEDIATE
//     transaction. The write lock is held from the first read, so no two
//     transactions can observe-then-overwrite the same counter.
//   - Lock contention (SQLITE_BUSY / SQLITE_LOCKED) surfaces as ErrConflict
//     and is retried with exponential backoff.
//
// Invariants enforced in the schema
//   - Referral edges are immutable (trigger)
//   - is_verified_human never reverts (trigger)
//   - Commission logs are never deleted and only move PENDING -> AVAILABLE (triggers)
//
// Deterministic ordering
//   - Logs and alerts are read ORDER BY seq ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package ledger
