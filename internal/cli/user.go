package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/rewardledger/internal/account"
	"github.com/roach88/rewardledger/internal/model"
)

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage ledger users",
	}

	cmd.AddCommand(newUserCreateCommand(rootOpts))
	cmd.AddCommand(newUserShowCommand(rootOpts))
	cmd.AddCommand(newUserLevelCommand(rootOpts))
	cmd.AddCommand(newUserLogsCommand(rootOpts))

	return cmd
}

func newUserCreateCommand(opts *RootOptions) *cobra.Command {
	var referrer string

	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create a user, optionally under a referrer",
		Long: `Create a user. The tier-2 referrer is taken from the referrer's own
referrer; referral edges cannot be changed afterwards.

An id is generated when none is given.

Example:
  rewardledger user create alice
  rewardledger user create bob --referrer alice`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp(a, opts.log())

			req := account.NewUser{ReferrerID: referrer}
			if len(args) == 1 {
				req.ID = args[0]
			}
			u, err := a.Accounts.Create(cmd.Context(), req)
			out := opts.formatter(cmd)
			if err != nil {
				return reject(out, "user not created", err)
			}
			return out.Success(userView(u))
		},
	}

	cmd.Flags().StringVar(&referrer, "referrer", "", "id of the referring user")
	return cmd
}

func newUserShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show a user's balances and status",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp(a, opts.log())

			u, err := a.Accounts.User(cmd.Context(), args[0])
			out := opts.formatter(cmd)
			if err != nil {
				return reject(out, "user lookup failed", err)
			}
			return out.Success(userView(u))
		},
	}
}

func newUserLevelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "level <id> <level>",
		Short: "Raise a user's level",
		Long: `Raise a user's level. Levels never decrease. If the user now meets the
verification predicate, their pending commissions are released.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil || level < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid level %q: must be a positive integer", args[1]))
			}

			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp(a, opts.log())

			u, err := a.Accounts.SetLevel(cmd.Context(), args[0], level)
			out := opts.formatter(cmd)
			if err != nil {
				return reject(out, "level not changed", err)
			}
			if _, err := a.Worker.Drain(cmd.Context()); err != nil {
				opts.log().Warn("sweep drain failed; task stays queued", "error", err)
			}

			// Re-read so a sweep that just ran is reflected.
			if fresh, err := a.Accounts.User(cmd.Context(), u.ID); err == nil {
				u = fresh
			}
			return out.Success(userView(u))
		},
	}
}

func newUserLogsCommand(opts *RootOptions) *cobra.Command {
	var generated bool

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "List commission logs paid to a user",
		Long: `List commission logs paid to a user, oldest first. With --generated,
list the logs the user's own rewards produced for their referrers.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp(a, opts.log())

			var logs []model.CommissionLog
			if generated {
				logs, err = a.Accounts.Generated(cmd.Context(), args[0])
			} else {
				logs, err = a.Accounts.Earnings(cmd.Context(), args[0])
			}
			out := opts.formatter(cmd)
			if err != nil {
				return reject(out, "log lookup failed", err)
			}
			return out.Success(logsView(logs))
		},
	}

	cmd.Flags().BoolVar(&generated, "generated", false, "list logs generated by the user instead of paid to them")
	return cmd
}

type userView model.User

func (u userView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s\n", u.ID)
	fmt.Fprintf(w, "  balance:          %s\n", u.Balance)
	fmt.Fprintf(w, "  pending:          %s\n", u.PendingBalance)
	fmt.Fprintf(w, "  network earnings: %s\n", u.TotalNetworkEarnings)
	fmt.Fprintf(w, "  level:            %d\n", u.Level)
	fmt.Fprintf(w, "  ads watched:      %d\n", u.AdWatchCount)
	fmt.Fprintf(w, "  status:           %s\n", u.Status)
	fmt.Fprintf(w, "  verified:         %t\n", u.IsVerifiedHuman)
	if u.WithdrawalPaused {
		fmt.Fprintln(w, "  withdrawals paused")
	}
	if u.ReferredBy != "" {
		fmt.Fprintf(w, "  referred by:      %s\n", u.ReferredBy)
	}
	if u.GrandReferredBy != "" {
		fmt.Fprintf(w, "  grand referrer:   %s\n", u.GrandReferredBy)
	}
}

type logsView []model.CommissionLog

func (v logsView) renderText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "no commission logs")
		return
	}
	for _, l := range v {
		fmt.Fprintf(w, "%s  tier %d  %s -> %s  %s  %s\n", l.ID, l.Tier, l.SourceID, l.RecipientID, l.Amount, l.Status)
	}
}
