package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/AshkanYarmoradi/go-ferret/cli/styles"
	"github.com/AshkanYarmoradi/go-ferret/cli/ui"
	"github.com/spf13/cobra"
)

// NewStreamCommand creates the stream command
func NewStreamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect event streams",
		Long: `Inspect the event streams stored in the configured event log.

Stream IDs have the form <type>-<key>=<value>[&<key>=<value>...].

Examples:
  ferret stream info counter-name=clicks     # Show stream metadata
  ferret stream events counter-name=clicks   # Show the events of a stream`,
	}

	cmd.AddCommand(newStreamInfoCommand())
	cmd.AddCommand(newStreamEventsCommand())

	return cmd
}

func newStreamInfoCommand() *cobra.Command {
	var flags runtimeFlags

	cmd := &cobra.Command{
		Use:   "info <stream-id>",
		Short: "Show stream metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID := args[0]

			rt, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			info, err := rt.Adapter.GetStreamInfo(cmd.Context(), streamID)
			if errors.Is(err, adapters.ErrStreamNotFound) {
				return fmt.Errorf("stream '%s' not found", streamID)
			}
			if err != nil {
				return err
			}

			table := ui.NewTable("", "")
			table.AddRow("Stream", info.StreamID)
			table.AddRow("Category", info.Category)
			table.AddRow("Version", strconv.FormatInt(info.Version, 10))
			table.AddRow("Events", strconv.FormatInt(info.EventCount, 10))
			table.AddRow("Created", info.CreatedAt.Format(time.RFC3339))
			table.AddRow("Updated", info.UpdatedAt.Format(time.RFC3339))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Title.Render(styles.IconStream+" "+streamID))
			fmt.Fprintln(out, table.Render())

			return flags.finish(cmd, rt)
		},
	}

	flags.register(cmd)

	return cmd
}

func newStreamEventsCommand() *cobra.Command {
	var (
		flags runtimeFlags
		from  int64
	)

	cmd := &cobra.Command{
		Use:   "events <stream-id>",
		Short: "Show the events of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID := args[0]
			out := cmd.OutOrStdout()

			rt, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			events, err := rt.Adapter.Load(cmd.Context(), streamID, from)
			if err != nil {
				return err
			}

			if len(events) == 0 {
				fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("No events in stream '%s'", streamID)))
				return flags.finish(cmd, rt)
			}

			fmt.Fprintln(out, styles.Title.Render(fmt.Sprintf("%s Stream: %s", styles.IconStream, streamID)))

			serializer := rt.Repository.Serializer()
			for _, e := range events {
				fmt.Fprintln(out, styles.Subtitle.Render(fmt.Sprintf("Event #%d: %s", e.Version, e.Type)))
				fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("  ID: %s", e.ID)))
				fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("  Time: %s", e.Timestamp.Format(time.RFC3339))))

				props, err := serializer.Deserialize(e.Data, e.Type)
				if err != nil {
					fmt.Fprintln(out, styles.FormatError(err.Error()))
					continue
				}
				data, err := json.MarshalIndent(props, "  ", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "  "+styles.Code.Render(string(data)))
				fmt.Fprintln(out, ui.Divider(60))
			}

			return flags.finish(cmd, rt)
		},
	}

	flags.register(cmd)
	cmd.Flags().Int64VarP(&from, "from", "f", 0, "Only show events after this stream version")

	return cmd
}
