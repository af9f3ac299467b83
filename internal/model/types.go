package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserStatus is the fraud-review state of an account.
type UserStatus string

const (
	StatusNormal  UserStatus = "NORMAL"
	StatusFlagged UserStatus = "FLAGGED"
)

// LogStatus is the lifecycle state of a commission log.
type LogStatus string

const (
	// LogPending means the amount sits in the recipient's pending balance.
	LogPending LogStatus = "PENDING"
	// LogAvailable means the amount has been credited to the recipient's balance.
	LogAvailable LogStatus = "AVAILABLE"
)

// Tier identifies a referral edge: 1 is the direct referrer, 2 the referrer's referrer.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
)

// Alert types recorded by the Sybil guard.
const (
	AlertClusterSybil = "CLUSTER_SYBIL"
	AlertGuardError   = "GUARD_ERROR"
)

// User is one participant's ledger record.
type User struct {
	ID                   string          `json:"id"`
	Balance              decimal.Decimal `json:"balance"`
	PendingBalance       decimal.Decimal `json:"pending_balance"`
	Level                int             `json:"level"`
	AdWatchCount         int64           `json:"ad_watch_count"`
	TotalNetworkEarnings decimal.Decimal `json:"total_network_earnings"`
	ReferredBy           string          `json:"referred_by,omitempty"`
	GrandReferredBy      string          `json:"grand_referred_by,omitempty"`
	LastIP               string          `json:"last_ip,omitempty"`
	DeviceID             string          `json:"device_id,omitempty"`
	LastHeartbeat        time.Time       `json:"last_heartbeat"`
	WithdrawalPaused     bool            `json:"withdrawal_paused"`
	Status               UserStatus      `json:"status"`
	IsVerifiedHuman      bool            `json:"is_verified_human"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Progress is the subset of a user record that drives verification.
type Progress struct {
	Level        int   `json:"level"`
	AdWatchCount int64 `json:"ad_watch_count"`
}

// Progress returns the user's verification-relevant snapshot.
func (u User) Progress() Progress {
	return Progress{Level: u.Level, AdWatchCount: u.AdWatchCount}
}

// CommissionLog is an append-only record of one commission payment.
// Status moves PENDING -> AVAILABLE at most once; logs are never deleted.
type CommissionLog struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	RecipientID string          `json:"recipient_id"`
	SourceID    string          `json:"source_id"`
	Tier        Tier            `json:"tier"`
	Amount      decimal.Decimal `json:"amount"`
	Status      LogStatus       `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
}

// SecurityAlert is an append-only record of a fraud detection event.
type SecurityAlert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IP        string    `json:"ip,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Confirmation is one incoming rewarded-action confirmation from the ad network.
// ConfirmationID is optional; when present it deduplicates replays.
type Confirmation struct {
	ConfirmationID string `json:"confirmation_id,omitempty"`
	UserID         string `json:"user_id"`
	RewardType     string `json:"reward_type"`
	IP             string `json:"ip,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
}
