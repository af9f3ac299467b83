package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rewardledger/internal/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the sweep worker",
		Long: `Start the HTTP API and the verification sweep worker.

The API accepts reward confirmations at POST /v1/rewards/confirm, exposes
account endpoints under /v1/users and Prometheus metrics at /metrics.
The worker releases pending commissions as users become verified.

Example:
  rewardledger serve --config ./rewardledger.yaml
  rewardledger serve --db /tmp/ledger.db --listen :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := opts.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, opts.log())

	addr := a.Config.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.log()
	logger.Info("ledger ready", "db", a.Config.Database, "listen", addr)

	srv, err := api.New(a)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build http server", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweep worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("ledger stopped gracefully")
	return nil
}
