package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rewardledger/internal/model"
)

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts [user]",
		Short: "List security alerts",
		Long: `List security alerts raised by the Sybil check, oldest first.
Without a user id every alert is listed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp(a, opts.log())

			var userID string
			if len(args) == 1 {
				userID = args[0]
			}
			alerts, err := a.Accounts.Alerts(cmd.Context(), userID)
			out := opts.formatter(cmd)
			if err != nil {
				return reject(out, "alert lookup failed", err)
			}
			return out.Success(alertsView(alerts))
		},
	}
}

type alertsView []model.SecurityAlert

func (v alertsView) renderText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "no alerts")
		return
	}
	for _, a := range v {
		fmt.Fprintf(w, "%s  %s  %s  ip=%s device=%s  %s\n",
			a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), a.Type, a.UserID, a.IP, a.DeviceID, a.ID)
	}
}
