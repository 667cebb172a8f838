// Package cli holds the roundsctl operator commands.
package cli

import (
	"github.com/spf13/cobra"

	"rememberme/api/internal/app"
	"rememberme/api/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	// load is replaced in tests.
	load func() (config.Config, error)
}

// NewRootCommand creates the root command for roundsctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load)
}

func newRootCommand(load func() (config.Config, error)) *cobra.Command {
	opts := &RootOptions{load: load}

	cmd := &cobra.Command{
		Use:           "roundsctl",
		Short:         "Operator tooling for the rounds API",
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				app.SetLogLevel("debug")
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewGenKeyCommand(opts))
	cmd.AddCommand(NewPingCommand(opts))

	return cmd
}
