package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/MODJayden/jobcue"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigDir string
	BaseURL   string
	Verbose   bool
	Format    string // "json" | "text"

	clientOptions []func(*jobcue.Client) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the jobcue CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobcue",
		Short: "jobcue - resilient JobCue API client",
		Long: `Send requests to the JobCue API from the command line.

Mutating requests made while the API is unreachable are kept in a durable
queue and replayed once connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "", "configuration directory (default: user config dir/jobcue)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "API base URL, overrides base_url")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDoCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// configDir resolves --config-dir, defaulting to jobcue under the user config dir.
func (opts *RootOptions) configDir() (string, error) {
	if opts.ConfigDir != "" {
		return opts.ConfigDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", WrapExitError(ExitCommandError, "resolving config dir", err)
	}
	return filepath.Join(base, "jobcue"), nil
}

// newClient builds a client from the config dir. Logs go to stderr.
func (opts *RootOptions) newClient(cmd *cobra.Command) (*jobcue.Client, error) {
	dir, err := opts.configDir()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	options := []func(*jobcue.Client) error{
		jobcue.WithConfigDir(dir),
		jobcue.WithLogger(logger),
	}
	if opts.BaseURL != "" {
		options = append(options, jobcue.WithBaseURL(opts.BaseURL))
	}
	options = append(options, opts.clientOptions...)

	client, err := jobcue.New(options...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "creating client", err)
	}
	return client, nil
}

func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format: opts.Format,
		Writer: cmd.OutOrStdout(),
	}
}
