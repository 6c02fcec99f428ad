package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/MODJayden/jobcue/domain"
	"github.com/spf13/cobra"
)

// NewQueueCommand creates the queue command and its subcommands.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the offline queue",
	}

	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueDrainCommand(rootOpts))
	cmd.AddCommand(newQueueStatsCommand(rootOpts))
	cmd.AddCommand(newQueueDeadCommand(rootOpts))

	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued requests in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			queue, err := client.Queue().All(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "reading queue", err)
			}
			return rootOpts.formatter(cmd).Print(queue, func(w io.Writer) error {
				return printQueue(w, queue)
			})
		},
	}
}

func printQueue(w io.Writer, queue []domain.QueuedRequest) error {
	if len(queue) == 0 {
		_, err := fmt.Fprintln(w, "queue is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tPATH\tRETRIES\tENQUEUED")
	for _, entry := range queue {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			entry.ID, entry.Method, entry.Path, entry.RetryCount, entry.EnqueuedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newQueueDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay queued requests now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.RetryQueuedRequests(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "draining queue", err)
			}
			err = rootOpts.formatter(cmd).Print(report, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "succeeded %d, retried %d, exhausted %d, expired %d, remaining %d\n",
					report.Succeeded, report.Retried, report.Exhausted, report.Expired, report.Remaining)
				return err
			})
			if err != nil {
				return err
			}
			if report.Retried > 0 || report.Exhausted > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d replays failed", report.Retried+report.Exhausted))
			}
			return nil
		},
	}
}

func newQueueStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and dead letter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "reading stats", err)
			}
			return rootOpts.formatter(cmd).Print(stats, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "queued: %d\ndead letters: %d\n", stats.Queued, stats.DeadLetters)
				return err
			})
		},
	}
}

func newQueueDeadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dead",
		Short: "List requests dropped without being delivered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			repo := client.DeadLetters()
			if repo == nil {
				return NewExitError(ExitCommandError, "the configured store does not keep dead letters")
			}
			letters, err := repo.GetDeadLetters(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "reading dead letters", err)
			}
			return rootOpts.formatter(cmd).Print(letters, func(w io.Writer) error {
				if len(letters) == 0 {
					_, err := fmt.Fprintln(w, "no dead letters")
					return err
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tMETHOD\tPATH\tRETRIES\tREASON\tDROPPED")
				for _, letter := range letters {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						letter.ID, letter.Method, letter.Path, letter.RetryCount, letter.Reason, letter.DroppedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}
