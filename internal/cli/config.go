package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/MODJayden/jobcue"
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change config.yaml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			keys := cfg.Keys()
			slices.Sort(keys)
			values := make(map[string]any, len(keys))
			for _, key := range keys {
				values[key] = cfg.Get(key)
			}
			return rootOpts.formatter(cmd).Print(values, func(w io.Writer) error {
				for _, key := range keys {
					if _, err := fmt.Fprintf(w, "%s = %v\n", key, values[key]); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Validate and persist a configuration value",
		Example: "  jobcue config set base_url https://api.jobcue.example/v1\n  jobcue config set queue.max_retries 5",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if !slices.Contains(cfg.Keys(), args[0]) {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown key %q", args[0]))
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return WrapExitError(ExitCommandError, "setting "+args[0], err)
			}
			return nil
		},
	})

	return cmd
}

func loadConfig(rootOpts *RootOptions) (*jobcue.Config, error) {
	dir, err := rootOpts.configDir()
	if err != nil {
		return nil, err
	}
	cfg, err := jobcue.LoadConfig(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	return cfg, nil
}
