package ledger

import (
	"database/sql"
	"fmt"

	"github.com/roach88/rewardledger/internal/model"
)

const logColumns = `id, seq, recipient_id, source_id, tier, amount, status, created_at, settled_at`

const alertColumns = `id, user_id, ip, device_id, type, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                           model.User
		referredBy, grandReferredBy sql.NullString
		lastIP, deviceID            sql.NullString
		lastHeartbeat, createdAt    int64
		status                      string
	)
	err := row.Scan(
		&u.ID,
		&u.Balance,
		&u.PendingBalance,
		&u.Level,
		&u.AdWatchCount,
		&u.TotalNetworkEarnings,
		&referredBy,
		&grandReferredBy,
		&lastIP,
		&deviceID,
		&lastHeartbeat,
		&u.WithdrawalPaused,
		&status,
		&u.IsVerifiedHuman,
		&createdAt,
	)
	if err != nil {
		return model.User{}, err
	}

	u.ReferredBy = referredBy.String
	u.GrandReferredBy = grandReferredBy.String
	u.LastIP = lastIP.String
	u.DeviceID = deviceID.String
	u.LastHeartbeat = fromMillis(lastHeartbeat)
	u.Status = model.UserStatus(status)
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func scanLog(row rowScanner) (model.CommissionLog, error) {
	var (
		l         model.CommissionLog
		tier      int
		status    string
		createdAt int64
		settledAt sql.NullInt64
	)
	err := row.Scan(
		&l.ID,
		&l.Seq,
		&l.RecipientID,
		&l.SourceID,
		&tier,
		&l.Amount,
		&status,
		&createdAt,
		&settledAt,
	)
	if err != nil {
		return model.CommissionLog{}, err
	}

	l.Tier = model.Tier(tier)
	l.Status = model.LogStatus(status)
	l.CreatedAt = fromMillis(createdAt)
	if settledAt.Valid {
		ts := fromMillis(settledAt.Int64)
		l.SettledAt = &ts
	}
	return l, nil
}

func scanAlert(row rowScanner) (model.SecurityAlert, error) {
	var (
		a            model.SecurityAlert
		ip, deviceID sql.NullString
		createdAt    int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &ip, &deviceID, &a.Type, &createdAt); err != nil {
		return model.SecurityAlert{}, err
	}
	a.IP = ip.String
	a.DeviceID = deviceID.String
	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

// collectLogs drains rows into a slice. Returns an empty slice, not nil.
func collectLogs(rows *sql.Rows) ([]model.CommissionLog, error) {
	defer rows.Close()

	logs := []model.CommissionLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commission log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commission logs: %w", err)
	}
	return logs, nil
}
