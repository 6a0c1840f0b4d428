package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/AshkanYarmoradi/go-ferret/cli/config"
	"github.com/AshkanYarmoradi/go-ferret/cli/styles"
	"github.com/AshkanYarmoradi/go-ferret/cli/ui"
	"github.com/spf13/cobra"
)

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your ferret setup.

This command verifies:
  • Configuration file validity
  • Event log connectivity
  • Serializer round trips`,
		Aliases: []string{"diag", "doctor"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runDiagnose(cmd.OutOrStdout(), defaultChecks())
			return nil
		},
	}

	return cmd
}

func defaultChecks() []DiagnosticCheck {
	return []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: checkConfiguration},
		{Name: "Event Log Connection", Check: checkEventLogConnection},
		{Name: "Serializer", Check: checkSerializer},
	}
}

// runDiagnose prints each check and reports whether all of them passed.
func runDiagnose(out io.Writer, checks []DiagnosticCheck) bool {
	fmt.Fprintln(out, ui.SimpleBanner())
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Title.Render(styles.IconHealth+" Running Diagnostics"))

	results := make([]CheckResult, 0, len(checks))
	allPassed := true

	for _, check := range checks {
		fmt.Fprintf(out, "  %s Checking %s... ", styles.IconPending, check.Name)

		result := check.Check()
		results = append(results, result)

		switch result.Status {
		case StatusOK:
			fmt.Fprintln(out, styles.SuccessStyle.Render("OK"))
		case StatusWarning:
			fmt.Fprintln(out, styles.WarningStyle.Render("WARNING"))
			allPassed = false
		default:
			fmt.Fprintln(out, styles.ErrorStyle.Render("FAILED"))
			allPassed = false
		}

		if result.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(result.Message))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Divider(50))
	fmt.Fprintln(out)

	if allPassed {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed! Your ferret setup is healthy."))
		return true
	}

	fmt.Fprintln(out, styles.FormatWarning("Some checks failed or have warnings."))
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Subtitle.Render("Recommendations:"))
	for _, r := range results {
		if r.Recommendation != "" {
			fmt.Fprintf(out, "  %s %s\n", styles.IconArrow, r.Recommendation)
		}
	}
	return false
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

func newCheckResult(name string, status CheckStatus, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message}
}

func (r CheckResult) withRecommendation(rec string) CheckResult {
	r.Recommendation = rec
	return r
}

// DiagnosticCheck represents a diagnostic check function
type DiagnosticCheck struct {
	Name  string
	Check func() CheckResult
}

func checkGoVersion() CheckResult {
	return newCheckResult("Go Version", StatusOK, runtime.Version())
}

func checkConfiguration() CheckResult {
	const name = "Configuration"
	cwd, err := os.Getwd()
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check directory permissions")
	}
	dir, cfg, err := config.FindConfig(cwd)
	if os.IsNotExist(err) {
		return newCheckResult(name, StatusWarning, "No "+config.ConfigFileName+" found").
			withRecommendation("Run 'ferret init' to create a configuration file")
	}
	if err != nil {
		return newCheckResult(name, StatusError, fmt.Sprintf("Invalid config: %v", err)).
			withRecommendation("Check " + config.ConfigFileName + " syntax")
	}
	if errors := cfg.Validate(); len(errors) > 0 {
		return newCheckResult(name, StatusWarning, fmt.Sprintf("%d validation errors", len(errors))).
			withRecommendation(errors[0])
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Project: %s, Driver: %s, Dir: %s", cfg.Project.Name, cfg.Database.Driver, dir))
}

func checkEventLogConnection() CheckResult {
	const name = "Event Log Connection"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, dir, err := loadConfig()
	if err != nil {
		return newCheckResult(name, StatusWarning, "No configuration found").withRecommendation("Run 'ferret init' first")
	}
	if cfg.Database.Driver == "memory" {
		return newCheckResult(name, StatusOK, "Using in-memory driver (no connection needed)")
	}

	factory, err := NewAdapterFactory(cfg, dir)
	if err != nil {
		return newCheckResult(name, StatusWarning, err.Error()).withRecommendation("Set DATABASE_URL environment variable")
	}

	adapter, err := factory.CreateAdapter(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Verify database credentials")
	}
	defer adapter.Close()

	if err := adapter.Ping(ctx); err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check database server status")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Connected to %s", factory.Location()))
}

func checkSerializer() CheckResult {
	const name = "Serializer"

	serializerName := config.DefaultConfig().Serializer
	if cfg, _, err := loadConfig(); err == nil {
		serializerName = cfg.Serializer
	}

	serializer, err := NewSerializer(serializerName)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Use json, msgpack or protobuf")
	}

	event := ferret.NewEvent("diagnose", ferret.Properties{"name": "sample", "count": 3})
	data, err := serializer.Serialize(event)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}
	props, err := serializer.Deserialize(data, event.Type)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}
	if props.String("name") != "sample" || props.Int("count") != 3 {
		return newCheckResult(name, StatusError, fmt.Sprintf("%s round trip changed the payload: %v", serializerName, props))
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("%s round trip (%d bytes)", serializerName, len(data)))
}

// NewVersionCommand creates the version command
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.SimpleBanner())
			fmt.Fprintln(out)

			table := ui.NewTable("", "")
			table.AddRow("Version", version)
			table.AddRow("Library", ferret.Version())
			table.AddRow("Commit", commit)
			table.AddRow("Built", date)
			table.AddRow("Go", runtime.Version())
			table.AddRow("OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))

			fmt.Fprintln(out, table.Render())

			return nil
		},
	}
}
