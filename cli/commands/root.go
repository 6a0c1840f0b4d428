// Package commands provides the CLI command implementations for ferret.
package commands

import (
	"fmt"
	"os"

	"github.com/AshkanYarmoradi/go-ferret/cli/styles"
	"github.com/AshkanYarmoradi/go-ferret/cli/ui"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command for the ferret CLI
func NewRootCommand() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "ferret",
		Short: "Event-sourced aggregates for Go",
		Long: ui.SimpleBanner() + `

Ferret runs commands against event-sourced aggregates: it replays an
aggregate's history, lets a handler decide, and commits the new events
under optimistic concurrency.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("ferret init") + `                      Create ferret.yaml
  ` + styles.Code.Render("ferret migrate") + `                   Create the event log schema
  ` + styles.Code.Render("ferret counter increment clicks") + `  Run a command
  ` + styles.Code.Render("ferret stream info counter-name=clicks") + `
  ` + styles.Code.Render("ferret diagnose") + `                  Check your setup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewCounterCommand())
	rootCmd.AddCommand(NewStreamCommand())
	rootCmd.AddCommand(NewDiagnoseCommand())
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
