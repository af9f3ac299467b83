// Package reconcile settles deferred commissions when a user becomes verified.
//
// A user is verified once their level and ad watch count both reach the
// configured minimums. Commissions that user generated before that moment
// were written PENDING; a sweep moves each of them to the recipient's
// spendable balance.
//
// The flow has three parts:
//
//   - Hook runs inside every transaction that changes level or ad count. On
//     the unverified -> verified edge it enqueues a row in sweep_tasks, so the
//     task commits together with the change that caused it.
//   - Reconciler.Sweep performs the sweep for one user. Logs are promoted in
//     batches; a failed batch is retried one log per transaction. The user is
//     marked verified after every log has been attempted.
//   - Worker drains sweep_tasks. It is woken in-process after commits and
//     also polls, so tasks left by a crash or a partial sweep are retried.
//
// Every promotion is a conditional PENDING -> AVAILABLE update paired with
// the balance move in the same transaction. Running a sweep twice, or two
// sweeps at once, never credits a log twice.
package reconcile
