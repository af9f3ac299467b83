package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SweepTask is a queued verification sweep for one user.
type SweepTask struct {
	UserID     string
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
}

// SweepTasks returns up to limit queued sweeps, oldest first.
func (s *Store) SweepTasks(ctx context.Context, limit int) ([]SweepTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, enqueued_at, attempts, last_error
		FROM sweep_tasks
		ORDER BY enqueued_at ASC, user_id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sweep tasks: %w", err)
	}
	defer rows.Close()

	tasks := []SweepTask{}
	for rows.Next() {
		var (
			task       SweepTask
			enqueuedAt int64
			lastError  sql.NullString
		)
		if err := rows.Scan(&task.UserID, &enqueuedAt, &task.Attempts, &lastError); err != nil {
			return nil, fmt.Errorf("scan sweep task: %w", err)
		}
		task.EnqueuedAt = fromMillis(enqueuedAt)
		task.LastError = lastError.String
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep tasks: %w", err)
	}
	return tasks, nil
}

// CompleteSweep removes the queued sweep for userID.
func (s *Store) CompleteSweep(ctx context.Context, userID string) error {
	return s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM sweep_tasks WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("complete sweep: %w", err)
		}
		return nil
	})
}

// FailSweep records a failed attempt; the task stays queued for the next poll.
func (s *Store) FailSweep(ctx context.Context, userID string, cause error) error {
	return s.Update(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			UPDATE sweep_tasks
			SET attempts = attempts + 1, last_error = ?
			WHERE user_id = ?
		`, cause.Error(), userID)
		if err != nil {
			return fmt.Errorf("fail sweep: %w", err)
		}
		return nil
	})
}
