package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rewardledger/internal/reconcile"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Pending bool
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep [user]",
		Short: "Release pending commissions of verified users",
		Long: `Promote the PENDING commission logs generated by a verified user to
AVAILABLE. With --pending, run every sweep left in the task queue, such
as those that failed part way or were interrupted by a restart.

Exit codes:
  0 - Sweep completed
  1 - Sweep rejected or some logs left pending
  2 - Command error

Example:
  rewardledger sweep u-42
  rewardledger sweep --pending`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Pending == (len(args) == 1) {
				return NewExitError(ExitCommandError, "give either a user id or --pending")
			}
			if opts.Pending {
				return runDrain(opts, cmd)
			}
			return runSweep(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "run every queued sweep task")
	return cmd
}

func runSweep(opts *SweepOptions, userID string, cmd *cobra.Command) error {
	a, err := opts.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, opts.log())

	report, err := a.Reconciler.Sweep(cmd.Context(), userID)
	out := opts.formatter(cmd)
	if err != nil {
		return reject(out, "sweep incomplete", err)
	}
	// A manual sweep supersedes any queued task for the user.
	if err := a.Store.CompleteSweep(cmd.Context(), userID); err != nil {
		opts.log().Warn("failed to clear sweep task", "user", userID, "error", err)
	}
	return out.Success(reportView(report))
}

func runDrain(opts *SweepOptions, cmd *cobra.Command) error {
	a, err := opts.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, opts.log())

	done, err := a.Worker.Drain(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "drain failed", err)
	}
	left, err := a.Store.SweepTasks(cmd.Context(), a.Config.Reconcile.BatchSize)
	if err != nil {
		return WrapExitError(ExitCommandError, "drain failed", err)
	}

	result := drainView{Completed: done, Remaining: len(left)}
	if err := opts.formatter(cmd).Success(result); err != nil {
		return err
	}
	if result.Remaining > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d sweep task(s) still queued", result.Remaining))
	}
	return nil
}

type reportView reconcile.Report

func (r reportView) renderText(w io.Writer) {
	fmt.Fprintf(w, "swept %s: %d promoted, %d already available\n", r.UserID, r.Promoted, r.Skipped)
}

type drainView struct {
	Completed int `json:"completed"`
	Remaining int `json:"remaining"`
}

func (d drainView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%d sweep(s) completed, %d queued\n", d.Completed, d.Remaining)
}
