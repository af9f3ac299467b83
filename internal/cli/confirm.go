package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/settlement"
)

// ConfirmOptions holds flags for the confirm command.
type ConfirmOptions struct {
	*RootOptions
	User           string
	RewardType     string
	IP             string
	DeviceID       string
	ConfirmationID string
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfirmOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Settle one reward confirmation",
		Long: `Settle a reward confirmation against the ledger.

The user is credited with the configured amount for the reward type,
their referrers receive commissions, and the Sybil check runs on the
given ip and device id.

Example:
  rewardledger confirm --user u-42 --reward INSTANT --ip 10.0.0.1 --device abc
  rewardledger confirm --user u-42 --id conf-7781 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirm(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user id (required)")
	cmd.Flags().StringVarP(&opts.RewardType, "reward", "r", "", "reward type (default table entry if unknown)")
	cmd.Flags().StringVar(&opts.IP, "ip", "", "client ip address")
	cmd.Flags().StringVar(&opts.DeviceID, "device", "", "client device id")
	cmd.Flags().StringVar(&opts.ConfirmationID, "id", "", "confirmation id for deduplication")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runConfirm(opts *ConfirmOptions, cmd *cobra.Command) error {
	a, err := opts.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, opts.log())

	receipt, err := a.Settler.Settle(cmd.Context(), model.Confirmation{
		ConfirmationID: opts.ConfirmationID,
		UserID:         opts.User,
		RewardType:     opts.RewardType,
		IP:             opts.IP,
		DeviceID:       opts.DeviceID,
	})
	out := opts.formatter(cmd)
	if err != nil {
		return reject(out, "confirmation rejected", err)
	}

	// Sweeps enqueued by this settlement run now; there is no worker
	// between CLI invocations.
	if receipt.SweepScheduled {
		if _, err := a.Worker.Drain(cmd.Context()); err != nil {
			opts.log().Warn("sweep drain failed; task stays queued", "error", err)
		}
	}
	return out.Success(receiptView(receipt))
}

// receiptView encodes like settlement.Receipt and adds a text form.
type receiptView settlement.Receipt

func (r receiptView) renderText(w io.Writer) {
	if r.Duplicate {
		fmt.Fprintf(w, "duplicate confirmation for %s: nothing changed\n", r.UserID)
		return
	}
	fmt.Fprintf(w, "credited %s %s (%s)\n", r.UserID, r.Amount, r.RewardType)
	if r.Flagged {
		fmt.Fprintf(w, "  flagged: cluster ip=%d device=%d, withdrawals paused\n", r.Verdict.IPCluster, r.Verdict.DeviceCluster)
	}
	for _, l := range r.Commissions {
		fmt.Fprintf(w, "  tier %d -> %s %s %s\n", l.Tier, l.RecipientID, l.Amount, l.Status)
	}
	if r.SweepScheduled {
		fmt.Fprintln(w, "  verified: pending commissions released")
	}
}
