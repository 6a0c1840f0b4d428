package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/AshkanYarmoradi/go-ferret/cli/styles"
	"github.com/AshkanYarmoradi/go-ferret/cli/ui"
	"github.com/AshkanYarmoradi/go-ferret/examples/counter"
	"github.com/spf13/cobra"
)

// runtimeFlags are shared by every command that builds a Runtime.
type runtimeFlags struct {
	trace   bool
	metrics bool
}

func (f *runtimeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Print OpenTelemetry spans to stderr")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "Print Prometheus metrics when done")
}

func (f *runtimeFlags) open(cmd *cobra.Command) (*Runtime, error) {
	return NewRuntime(cmd.Context(), RuntimeOptions{
		Trace:       f.trace,
		TraceOutput: cmd.ErrOrStderr(),
		LogOutput:   cmd.ErrOrStderr(),
	})
}

func (f *runtimeFlags) finish(cmd *cobra.Command, rt *Runtime) error {
	if !f.metrics {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return rt.WriteMetrics(cmd.OutOrStdout())
}

// NewCounterCommand creates the counter command
func NewCounterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Run the built-in counter domain",
		Long: `Run commands against named counters stored in the configured event log.

A counter is an aggregate of type "counter" keyed by its name. Increments
are rejected once the count reaches counter.limit; reset sets it back to 0.

Examples:
  ferret counter increment clicks            # Increment once
  ferret counter increment clicks --times 5  # Increment five times
  ferret counter reset clicks                # Start over
  ferret counter show clicks --history       # Show state and events`,
	}

	cmd.AddCommand(newCounterIncrementCommand())
	cmd.AddCommand(newCounterResetCommand())
	cmd.AddCommand(newCounterShowCommand())

	return cmd
}

func newCounterIncrementCommand() *cobra.Command {
	var (
		flags runtimeFlags
		times int
	)

	cmd := &cobra.Command{
		Use:     "increment <name>",
		Short:   "Increment a counter",
		Aliases: []string{"inc"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if times < 1 {
				return fmt.Errorf("--times must be at least 1")
			}

			rt, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			command := rt.Domain.Increment.Message(ferret.Properties{"name": args[0]})

			results := make([]ferret.Result, 0, times)
			for i := 0; i < times; i++ {
				result, err := rt.Engine.Transact(cmd.Context(), command)
				if err != nil {
					printResults(cmd.OutOrStdout(), results)
					return err
				}
				results = append(results, result)
			}

			printResults(cmd.OutOrStdout(), results)
			return flags.finish(cmd, rt)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&times, "times", "t", 1, "Number of increments to run")

	return cmd
}

func newCounterResetCommand() *cobra.Command {
	var flags runtimeFlags

	cmd := &cobra.Command{
		Use:   "reset <name>",
		Short: "Reset a counter to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Engine.Transact(cmd.Context(), rt.Domain.Reset.Message(ferret.Properties{"name": args[0]}))
			if err != nil {
				return err
			}

			printResults(cmd.OutOrStdout(), []ferret.Result{result})
			return flags.finish(cmd, rt)
		},
	}

	flags.register(cmd)

	return cmd
}

func newCounterShowCommand() *cobra.Command {
	var (
		flags   runtimeFlags
		history bool
	)

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the current state of a counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			rt, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := rt.Domain.ID(args[0])
			agg, err := rt.Repository.FetchLatest(cmd.Context(), id)
			if err != nil {
				return err
			}

			if agg.IsNew() {
				fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("Counter '%s' has no history", args[0])))
				return flags.finish(cmd, rt)
			}

			fmt.Fprintln(out, styles.FormatKeyValue("Stream", agg.StreamID()))
			fmt.Fprintln(out, styles.FormatKeyValue("Version", strconv.FormatInt(agg.Version(), 10)))
			fmt.Fprintln(out, styles.FormatKeyValue("Count", strconv.FormatInt(counter.Count(agg), 10)))
			fmt.Fprintln(out, styles.FormatKeyValue("Limit", strconv.FormatInt(rt.Domain.Limit(), 10)))

			if history {
				events, err := rt.Repository.History(cmd.Context(), id)
				if err != nil {
					return err
				}

				table := ui.NewTable("Version", "Event", "Recorded", "Correlation")
				for _, e := range events {
					table.AddRow(
						strconv.FormatInt(e.Version, 10),
						e.Type,
						e.Timestamp.Format(time.RFC3339),
						e.Metadata.CorrelationID,
					)
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, table.Render())
			}

			return flags.finish(cmd, rt)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&history, "history", false, "List the counter's events")

	return cmd
}

func printResults(w io.Writer, results []ferret.Result) {
	if len(results) == 0 {
		return
	}

	table := ui.NewTable("#", "Outcome", "Version", "Count", "Detail")
	for i, r := range results {
		detail := r.Reason()
		if r.IsOk() {
			detail = fmt.Sprintf("%d event(s)", len(r.Events()))
		}
		if r.IsConflict() {
			detail = "stream moved on, retry"
		}
		table.AddRow(
			strconv.Itoa(i+1),
			ui.StatusBadge(r.Outcome().String()),
			strconv.FormatInt(r.Version(), 10),
			strconv.FormatInt(counter.Count(r.Aggregate()), 10),
			detail,
		)
	}
	fmt.Fprintln(w, table.Render())
}
