// Package model provides the ledger's domain types.
//
// This package contains type definitions and pure helpers only. Every other
// internal package imports model; model imports nothing internal.
//
// Key design constraints:
//   - NO float types for money - amounts are decimal.Decimal
//   - Referral edges (ReferredBy, GrandReferredBy) are fixed at creation
//   - IsVerifiedHuman is monotonic: once true it never reverts
//   - All JSON tags use snake_case
package model
