package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rememberme/api/internal/app"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending Postgres migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			if cfg.DocstoreDriver != "postgres" {
				return fmt.Errorf("migrate needs DOCSTORE_DRIVER=postgres, got %q", cfg.DocstoreDriver)
			}
			store, err := app.OpenStore(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations from %s applied\n", cfg.MigrationsDir)
			return nil
		},
	}
}

// NewGenKeyCommand creates the genkey command.
func NewGenKeyCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate an RSA key for the local KMS",
		Long: `Generate an RSA private key in PEM form for KMS_DRIVER=local.

The key is written to --out, or to KMS_LOCAL_KEY_FILE when --out is empty.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := out
			if path == "" {
				cfg, err := rootOpts.load()
				if err != nil {
					return err
				}
				path = cfg.KMSLocalKeyFile
			}
			if path == "" {
				return errors.New("no key path given")
			}
			if err := app.WriteLocalKey(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "key file path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:          "ping",
		Short:        "Check that the configured document store is reachable",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			store, err := app.OpenStore(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("%s: %w", cfg.DocstoreDriver, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", cfg.DocstoreDriver)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "ping timeout")
	return cmd
}
