package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/autopilot/internal/orchestrator"
)

var (
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	accentColor  = lipgloss.Color("#A78BFA") // Purple

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(14)
)

// stateStyle colors a terminal state for the run summary.
func stateStyle(s orchestrator.State) lipgloss.Style {
	switch s {
	case orchestrator.StateCompleted:
		return successStyle.Bold(true)
	case orchestrator.StateRolledBack:
		return warningStyle.Bold(true)
	case orchestrator.StateFailedAborted:
		return errorStyle.Bold(true)
	default:
		return mutedStyle
	}
}

// field renders an aligned "label value" line.
func field(label, value string) string {
	return labelStyle.Render(label) + value
}

// maxLineWidth bounds step descriptions and error messages in CLI output.
const maxLineWidth = 100

// truncate shortens s to width visual columns, adding "..." if truncated.
// ANSI escape codes and wide characters are accounted for.
func truncate(s string, width int) string {
	if width <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
