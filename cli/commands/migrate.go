package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/cli/config"
	"github.com/AshkanYarmoradi/go-ferret/cli/styles"
	"github.com/AshkanYarmoradi/go-ferret/cli/ui"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the event log schema",
		Long: `Create the tables and indexes the configured event log needs.

The statements are idempotent: running migrate against an existing schema
leaves it untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, dir, err := loadConfig()
			if err != nil {
				return err
			}

			if cfg.Database.Driver == "memory" {
				fmt.Fprintln(out, styles.FormatInfo("Memory driver doesn't require migrations"))
				return nil
			}

			if errs := cfg.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid %s: %s", config.ConfigFileName, strings.Join(errs, "; "))
			}

			factory, err := NewAdapterFactory(cfg, dir)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ensureContext(cmd.Context()), timeout)
			defer cancel()

			return ui.RunWithSpinner(out, "Creating event log schema...", func() (string, error) {
				adapter, err := factory.CreateAdapter(ctx)
				if err != nil {
					return "Connection failed", err
				}
				defer adapter.Close()

				if err := adapter.Initialize(ctx); err != nil {
					return "Migration failed", err
				}
				return fmt.Sprintf("Event log ready (%s: %s)", cfg.Database.Driver, factory.Location()), nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")

	return cmd
}
