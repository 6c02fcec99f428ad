package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MODJayden/jobcue/connectivity"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Track connectivity and drain the queue on reconnect",
		Long: `Run the connectivity monitor in the foreground until interrupted.

The queue is drained at startup when the API is reachable and again on
every transition back online. Set connectivity.probe_url to poll a URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			unregister := client.Monitor().OnChange(func(transition connectivity.Transition) {
				fmt.Fprintf(out, "%s %s -> %s\n", transition.At.Format(time.RFC3339), transition.From, transition.To)
			})
			defer unregister()

			fmt.Fprintf(out, "watching %s, state %s\n", client.Config.BaseURL, client.Monitor().Current().State)
			if err := client.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitFailure, "watching connectivity", err)
			}
			return nil
		},
	}
}
