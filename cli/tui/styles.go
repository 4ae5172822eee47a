// Package tui provides the interactive Bubble Tea session for the
// screener CLI.
//
// TUI rules:
//   - The session is a thin consumer of query.Orchestrator state
//   - No TUI-exclusive data: every field shown is available to render
//   - Logs must go to a file while the session owns the terminal
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// FocusedBoxStyle marks the pane that receives keys.
	FocusedBoxStyle = BoxStyle.
			BorderForeground(highlightColor)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// SelectedStyle highlights the history cursor.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)
)

// Step markers.
const (
	stepDone    = "✓"
	stepActive  = "›"
	stepPending = "·"
)

// StepStyle returns the style of stage i given the active index.
func StepStyle(i, active int) lipgloss.Style {
	switch {
	case i < active:
		return SuccessStyle
	case i == active:
		return WarningStyle.Bold(true)
	default:
		return MutedStyle
	}
}

func stepMarker(i, active int) string {
	switch {
	case i < active:
		return stepDone
	case i == active:
		return stepActive
	default:
		return stepPending
	}
}
