package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/rewardledger/internal/model"
)

// User loads one user outside a transaction.
// Returns ErrUserNotFound if it does not exist.
func (s *Store) User(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		u, err = tx.User(ctx, id)
		return err
	})
	return u, err
}

// Users returns every user ordered by id.
// Used by the scenario harness and by conservation checks.
func (s *Store) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// LogsByRecipient returns every commission log paid to recipientID, oldest first.
func (s *Store) LogsByRecipient(ctx context.Context, recipientID string) ([]model.CommissionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM commission_logs
		WHERE recipient_id = ?
		ORDER BY seq ASC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query logs by recipient: %w", err)
	}
	return collectLogs(rows)
}

// LogsBySource returns every commission log generated by sourceID, oldest first.
func (s *Store) LogsBySource(ctx context.Context, sourceID string) ([]model.CommissionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM commission_logs
		WHERE source_id = ?
		ORDER BY seq ASC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query logs by source: %w", err)
	}
	return collectLogs(rows)
}

// AllLogs returns every commission log, oldest first.
func (s *Store) AllLogs(ctx context.Context) ([]model.CommissionLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+logColumns+` FROM commission_logs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	return collectLogs(rows)
}

// Alerts returns security alerts, oldest first. An empty userID returns all.
func (s *Store) Alerts(ctx context.Context, userID string) ([]model.SecurityAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM security_alerts`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []model.SecurityAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
