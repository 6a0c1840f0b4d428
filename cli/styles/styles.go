// Package styles provides consistent styling for the ferret CLI.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary      = lipgloss.Color("#D97706") // Amber
	PrimaryLight = lipgloss.Color("#FBBF24")
	Secondary    = lipgloss.Color("#0891B2") // Cyan

	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F9FAFB")
	TextMuted = lipgloss.Color("#9CA3AF")
	TextDim   = lipgloss.Color("#6B7280")
	Surface   = lipgloss.Color("#1F2937")
	Border    = lipgloss.Color("#374151")
)

// Text styles
var (
	Bold      lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Code      lipgloss.Style
)

// Status styles
var (
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style
)

// Boxes
var (
	Box     lipgloss.Style
	InfoBox lipgloss.Style
)

// Icons
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconDot      = "•"
	IconPending  = "◌"
	IconStream   = "⇶"
	IconDatabase = "🗄️"
	IconFolder   = "📁"
	IconHealth   = "❤️"
	IconFerret   = "🦦"
)

func init() {
	build()
}

// build derives every style from the current palette.
func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1)
	Subtitle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryLight)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Dim = lipgloss.NewStyle().Foreground(TextDim)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(Secondary).Background(Surface).Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)

	Box = newRoundedBox(Border)
	InfoBox = newRoundedBox(Info).MarginTop(1)
}

func newRoundedBox(borderColor lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(1, 2)
}

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(20)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// FormatOutcome renders a transaction outcome name in its status color.
func FormatOutcome(outcome string) string {
	switch outcome {
	case "ok":
		return SuccessStyle.Render(IconSuccess + " ok")
	case "rejected":
		return WarningStyle.Render(IconWarning + " rejected")
	case "conflict":
		return ErrorStyle.Render(IconError + " conflict")
	default:
		return Muted.Render(fmt.Sprintf("? %s", outcome))
	}
}

// DisableColors clears the palette and rebuilds the styles without color.
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &TextDim, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
	build()
}
