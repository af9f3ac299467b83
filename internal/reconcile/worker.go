package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/rewardledger/internal/ledger"
)

// Worker drains the sweep_tasks outbox.
//
// Run is the single consumer. Notify wakes it for a task that was just
// committed; the poll interval picks up tasks nobody notified about, such as
// those left queued after a partial sweep or a restart.
type Worker struct {
	store     *ledger.Store
	rec       *Reconciler
	queue     *signalQueue
	poll      time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewWorker creates a Worker. poll <= 0 disables polling; Run then relies
// on Notify alone after its initial drain.
func NewWorker(store *ledger.Store, rec *Reconciler, poll time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		store:     store,
		rec:       rec,
		queue:     newSignalQueue(),
		poll:      poll,
		batchSize: rec.batchSize,
		logger:    logger,
	}
}

// Notify schedules a sweep for userID. Safe to call from any goroutine.
func (w *Worker) Notify(userID string) {
	if !w.queue.Enqueue(userID) {
		w.logger.Debug("sweep notification after worker stopped", "user", userID)
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
// Queued tasks are drained once at startup.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("reconcile worker starting", "poll", w.poll)

	if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("initial sweep drain failed", "error", err)
	}

	var tick <-chan time.Time
	if w.poll > 0 {
		ticker := time.NewTicker(w.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if userID, ok := w.queue.TryDequeue(); ok {
			w.process(ctx, userID)
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("reconcile worker stopping: context cancelled")
			w.queue.Close()
			return ctx.Err()

		case <-w.queue.Wait():
			// A closed queue fires immediately with nothing left.
			if w.queue.Len() == 0 && w.stopped() {
				w.logger.Info("reconcile worker stopping: queue closed")
				return nil
			}

		case <-tick:
			if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("sweep poll failed", "error", err)
			}
		}
	}
}

// Stop makes Run return once the in-process queue is empty.
func (w *Worker) Stop() {
	w.queue.Close()
}

func (w *Worker) stopped() bool {
	w.queue.mu.Lock()
	defer w.queue.mu.Unlock()
	return w.queue.closed
}

// Drain runs every task currently in sweep_tasks once and returns how many
// completed. Tasks that fail stay queued.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	tasks, err := w.store.SweepTasks(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("drain sweeps: %w", err)
	}

	done := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if w.process(ctx, task.UserID) {
			done++
		}
	}
	return done, nil
}

// process sweeps one user and settles its outbox row. Returns true if the
// row was removed.
func (w *Worker) process(ctx context.Context, userID string) bool {
	_, err := w.rec.Sweep(ctx, userID)

	switch {
	case err == nil:
	case IsRetryable(err):
		w.logger.Warn("sweep failed, task kept", "user", userID, "error", err)
		if ferr := w.store.FailSweep(ctx, userID, err); ferr != nil {
			w.logger.Error("failed to record sweep failure", "user", userID, "error", ferr)
		}
		return false
	default:
		w.logger.Warn("dropping sweep task", "user", userID, "error", err)
	}

	if err := w.store.CompleteSweep(ctx, userID); err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("failed to complete sweep task", "user", userID, "error", err)
		}
		return false
	}
	return true
}
