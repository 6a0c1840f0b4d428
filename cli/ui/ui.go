// Package ui provides reusable UI components for the ferret CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AshkanYarmoradi/go-ferret/cli/styles"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// SpinnerModel is a spinner component with a message
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a new spinner with the given message
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{
		spinner: s,
		message: message,
	}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SpinnerModel) View() string {
	if m.done {
		if m.err != nil {
			return styles.FormatError(m.result) + "\n"
		}
		return styles.FormatSuccess(m.result) + "\n"
	}

	if m.quitting {
		return styles.FormatWarning("Cancelled") + "\n"
	}

	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// SpinnerDoneMsg signals that the spinner operation is complete
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// RunWithSpinner runs task while a spinner shows message. The task's
// summary line replaces the spinner when it finishes. Output that is not
// a terminal gets the summary line only.
func RunWithSpinner(out io.Writer, message string, task func() (string, error)) error {
	if !IsTerminal(out) {
		result, err := task()
		if err != nil {
			fmt.Fprintln(out, styles.FormatError(errorSummary(result, err)))
			return err
		}
		fmt.Fprintln(out, styles.FormatSuccess(result))
		return nil
	}

	p := tea.NewProgram(NewSpinner(message), tea.WithOutput(out), tea.WithInput(nil))

	var taskErr error
	go func() {
		result, err := task()
		taskErr = err
		if err != nil {
			result = errorSummary(result, err)
		}
		p.Send(SpinnerDoneMsg{Result: result, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return taskErr
}

func errorSummary(result string, err error) string {
	if result == "" {
		return err.Error()
	}
	return result + ": " + err.Error()
}

// Table renders a bordered table
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow adds a row to the table. Extra values are dropped and missing
// ones render empty.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := 0; i < len(t.headers) && i < len(values); i++ {
		row[i] = values[i]
		if w := lipgloss.Width(values[i]); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

// Render returns the formatted table string
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.Primary).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().
		Foreground(styles.Text).
		Padding(0, 1)
	borderStyle := lipgloss.NewStyle().
		Foreground(styles.Border)

	rule := func(left, mid, right string) string {
		var sb strings.Builder
		sb.WriteString(borderStyle.Render(left))
		for i, w := range t.widths {
			sb.WriteString(borderStyle.Render(strings.Repeat("─", w+2)))
			if i < len(t.widths)-1 {
				sb.WriteString(borderStyle.Render(mid))
			}
		}
		sb.WriteString(borderStyle.Render(right))
		return sb.String()
	}
	line := func(cells []string, style lipgloss.Style) string {
		var sb strings.Builder
		sb.WriteString(borderStyle.Render("│"))
		for i, cell := range cells {
			sb.WriteString(style.Width(t.widths[i] + 2).Render(cell))
			sb.WriteString(borderStyle.Render("│"))
		}
		return sb.String()
	}

	lines := []string{rule("┌", "┬", "┐")}
	if !t.headless() {
		lines = append(lines, line(t.headers, headerStyle), rule("├", "┼", "┤"))
	}
	for _, row := range t.rows {
		lines = append(lines, line(row, cellStyle))
	}
	lines = append(lines, rule("└", "┴", "┘"))

	return strings.Join(lines, "\n")
}

// headless reports whether every header is blank, as in key/value tables.
func (t *Table) headless() bool {
	for _, h := range t.headers {
		if h != "" {
			return false
		}
	}
	return true
}

// StatusBadge returns a styled status badge
func StatusBadge(status string) string {
	style := lipgloss.NewStyle().Padding(0, 1)
	switch strings.ToLower(status) {
	case "ok", "healthy", "connected":
		return style.Background(styles.Success).Foreground(lipgloss.Color("#000000")).Render(status)
	case "rejected", "warning", "skipped":
		return style.Background(styles.Warning).Foreground(lipgloss.Color("#000000")).Render(status)
	case "conflict", "error", "failed":
		return style.Background(styles.Error).Foreground(lipgloss.Color("#FFFFFF")).Render(status)
	default:
		return style.Background(styles.Surface).Foreground(styles.Text).Render(status)
	}
}

// Banner renders the ferret banner
func Banner() string {
	banner := `
   ┌──────────────────────────────────────────┐
   │   ___                  _                 │
   │  / _|___ _ _ _ _ ___ _| |_               │
   │ |  _/ -_) '_| '_/ -_)  _|                │
   │ |_| \___|_| |_| \___|\__|                │
   │                                          │
   │   Event-sourced aggregates for Go        │
   └──────────────────────────────────────────┘
`
	return lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Render(banner)
}

// SimpleBanner returns a one-line banner
func SimpleBanner() string {
	return styles.IconFerret + " " + lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.Primary).
		Render("ferret") +
		" " +
		styles.Muted.Render("- Event-sourced aggregates for Go")
}

// Divider returns a horizontal divider line
func Divider(width int) string {
	return styles.Dim.Render(strings.Repeat("─", width))
}

// ListItems formats a list of items with bullets
func ListItems(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("  ")
		sb.WriteString(styles.InfoStyle.Render(styles.IconDot))
		sb.WriteString(" ")
		sb.WriteString(styles.Normal.Render(item))
		sb.WriteString("\n")
	}
	return sb.String()
}
