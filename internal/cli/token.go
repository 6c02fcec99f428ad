package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command and its subcommands.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored bearer token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			token := strings.TrimSpace(args[0])
			if token == "" {
				return NewExitError(ExitCommandError, "token cannot be empty")
			}
			if err := client.Credentials().SetToken(cmd.Context(), token); err != nil {
				return WrapExitError(ExitFailure, "storing token", err)
			}
			return nil
		},
	})

	var reveal bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			token, ok := client.Credentials().Token(cmd.Context())
			if ok && !reveal {
				token = maskToken(token)
			}
			return rootOpts.formatter(cmd).Print(map[string]any{"present": ok, "token": token}, func(w io.Writer) error {
				if !ok {
					_, err := fmt.Fprintln(w, "no token stored")
					return err
				}
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}
	show.Flags().BoolVar(&reveal, "reveal", false, "print the full token")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Credentials().Clear(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "clearing token", err)
			}
			return nil
		},
	})

	return cmd
}

// maskToken keeps the first four characters.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 8)
}
