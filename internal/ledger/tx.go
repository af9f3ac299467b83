package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rewardledger/internal/model"
)

// Tx is a ledger transaction. Obtain one from Store.Update or Store.View.
// A Tx must not be used after the callback that received it returns.
type Tx struct {
	tx *sql.Tx
}

const userColumns = `id, balance, pending_balance, level, ad_watch_count, total_network_earnings,
	referred_by, grand_referred_by, last_ip, device_id, last_heartbeat,
	withdrawal_paused, status, is_verified_human, created_at`

// User loads one user. Returns ErrUserNotFound if it does not exist.
func (t *Tx) User(ctx context.Context, id string) (model.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("read user %s: %w", id, err)
	}
	return u, nil
}

// InsertUser creates a user record. Referral edges are written here and
// never again. Returns ErrUserExists if the id is taken.
func (t *Tx) InsertUser(ctx context.Context, u model.User) error {
	if u.Level < 1 {
		u.Level = 1
	}
	if u.Status == "" {
		u.Status = model.StatusNormal
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO users
		(id, balance, pending_balance, level, ad_watch_count, total_network_earnings,
		 referred_by, grand_referred_by, last_ip, device_id, last_heartbeat,
		 withdrawal_paused, status, is_verified_human, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		u.ID,
		u.Balance,
		u.PendingBalance,
		u.Level,
		u.AdWatchCount,
		u.TotalNetworkEarnings,
		nullString(u.ReferredBy),
		nullString(u.GrandReferredBy),
		nullString(u.LastIP),
		nullString(u.DeviceID),
		toMillis(u.LastHeartbeat),
		u.WithdrawalPaused,
		string(u.Status),
		u.IsVerifiedHuman,
		toMillis(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user %s: rows affected: %w", u.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	return nil
}

// ModifyUser loads a user, applies fn to it, and writes the mutable fields
// back. It returns the state before and after the change.
//
// Referral edges and creation time are never written. The write is rejected
// with ErrInvariant if it would make a balance negative, lower the level or
// the ad counter, or revert verification.
func (t *Tx) ModifyUser(ctx context.Context, id string, fn func(u *model.User) error) (before, after model.User, err error) {
	before, err = t.User(ctx, id)
	if err != nil {
		return model.User{}, model.User{}, err
	}

	after = before
	if err := fn(&after); err != nil {
		return model.User{}, model.User{}, err
	}

	if err := checkTransition(before, after); err != nil {
		return model.User{}, model.User{}, err
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE users SET
			balance = ?,
			pending_balance = ?,
			level = ?,
			ad_watch_count = ?,
			total_network_earnings = ?,
			last_ip = ?,
			device_id = ?,
			last_heartbeat = ?,
			withdrawal_paused = ?,
			status = ?,
			is_verified_human = ?
		WHERE id = ?
	`,
		after.Balance,
		after.PendingBalance,
		after.Level,
		after.AdWatchCount,
		after.TotalNetworkEarnings,
		nullString(after.LastIP),
		nullString(after.DeviceID),
		toMillis(after.LastHeartbeat),
		after.WithdrawalPaused,
		string(after.Status),
		after.IsVerifiedHuman,
		id,
	)
	if err != nil {
		return model.User{}, model.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	return before, after, nil
}

func checkTransition(before, after model.User) error {
	switch {
	case after.Balance.IsNegative():
		return fmt.Errorf("%w: user %s balance would be %s", ErrInvariant, after.ID, after.Balance)
	case after.PendingBalance.IsNegative():
		return fmt.Errorf("%w: user %s pending balance would be %s", ErrInvariant, after.ID, after.PendingBalance)
	case after.Level < before.Level:
		return fmt.Errorf("%w: user %s level cannot decrease (%d -> %d)", ErrInvariant, after.ID, before.Level, after.Level)
	case after.AdWatchCount < before.AdWatchCount:
		return fmt.Errorf("%w: user %s ad watch count cannot decrease", ErrInvariant, after.ID)
	case before.IsVerifiedHuman && !after.IsVerifiedHuman:
		return fmt.Errorf("%w: user %s verification cannot revert", ErrInvariant, after.ID)
	case after.ReferredBy != before.ReferredBy || after.GrandReferredBy != before.GrandReferredBy:
		return fmt.Errorf("%w: user %s referral edges are immutable", ErrInvariant, after.ID)
	}
	return nil
}

// InsertCommissionLog appends a commission log and returns it with Seq set.
func (t *Tx) InsertCommissionLog(ctx context.Context, l model.CommissionLog) (model.CommissionLog, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO commission_logs
		(id, recipient_id, source_id, tier, amount, status, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID,
		l.RecipientID,
		l.SourceID,
		int(l.Tier),
		l.Amount,
		string(l.Status),
		toMillis(l.CreatedAt),
		nullMillis(l.SettledAt),
	)
	if err != nil {
		return model.CommissionLog{}, fmt.Errorf("insert commission log: %w", err)
	}

	l.Seq, err = res.LastInsertId()
	if err != nil {
		return model.CommissionLog{}, fmt.Errorf("insert commission log: last insert id: %w", err)
	}
	return l, nil
}

// PendingLogsBySource returns up to limit PENDING logs generated by sourceID
// with seq greater than afterSeq, oldest first. Pass 0 to start from the
// beginning.
func (t *Tx) PendingLogsBySource(ctx context.Context, sourceID string, afterSeq int64, limit int) ([]model.CommissionLog, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM commission_logs
		WHERE source_id = ? AND status = 'PENDING' AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, sourceID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending logs: %w", err)
	}
	return collectLogs(rows)
}

// CommissionLog loads one log by id. Returns sql.ErrNoRows if not found.
func (t *Tx) CommissionLog(ctx context.Context, id string) (model.CommissionLog, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+logColumns+` FROM commission_logs WHERE id = ?`, id)
	return scanLog(row)
}

// MarkLogAvailable flips a log from PENDING to AVAILABLE.
// Returns false if the log was not PENDING (already promoted), in which case
// nothing changed and the caller must not move any balance.
func (t *Tx) MarkLogAvailable(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE commission_logs
		SET status = 'AVAILABLE', settled_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("mark log %s available: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark log %s available: rows affected: %w", id, err)
	}
	return n == 1, nil
}

// InsertAlert appends a security alert.
func (t *Tx) InsertAlert(ctx context.Context, a model.SecurityAlert) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO security_alerts (id, user_id, ip, device_id, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.UserID,
		nullString(a.IP),
		nullString(a.DeviceID),
		a.Type,
		toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert security alert: %w", err)
	}
	return nil
}

// CountRecentByIP counts users other than excludeID whose last_ip is ip and
// whose heartbeat is after since. Counting stops at limit.
func (t *Tx) CountRecentByIP(ctx context.Context, ip, excludeID string, since time.Time, limit int) (int, error) {
	return t.countRecent(ctx, "last_ip", ip, excludeID, since, limit)
}

// CountRecentByDevice is CountRecentByIP keyed on device_id.
func (t *Tx) CountRecentByDevice(ctx context.Context, deviceID, excludeID string, since time.Time, limit int) (int, error) {
	return t.countRecent(ctx, "device_id", deviceID, excludeID, since, limit)
}

func (t *Tx) countRecent(ctx context.Context, column, value, excludeID string, since time.Time, limit int) (int, error) {
	var n int
	// column is one of two package constants, never caller input.
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM users
			WHERE `+column+` = ? AND id != ? AND last_heartbeat > ?
			LIMIT ?
		)
	`, value, excludeID, toMillis(since), limit).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent by %s: %w", column, err)
	}
	return n, nil
}

// ClaimConfirmation records a confirmation id. Returns false if the id was
// already claimed, meaning the confirmation is a replay.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (t *Tx) ClaimConfirmation(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO confirmations (id, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, userID, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("claim confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim confirmation: rows affected: %w", err)
	}
	return n == 1, nil
}

// EnqueueSweep adds a verification sweep task for userID.
// An existing task for the same user is kept; duplicates collapse.
func (t *Tx) EnqueueSweep(ctx context.Context, userID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sweep_tasks (user_id, enqueued_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, toMillis(at))
	if err != nil {
		return fmt.Errorf("enqueue sweep: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
