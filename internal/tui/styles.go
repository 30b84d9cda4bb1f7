// Package tui renders command output for terminals and pipes.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by every style below.
var (
	colorAccent  = lipgloss.Color("#7C3AED")
	colorActive  = lipgloss.Color("#06B6D4")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorText    = lipgloss.Color("#E5E7EB")
	colorMuted   = lipgloss.Color("#9CA3AF")
)

var (
	// TitleStyle is for titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	// SubtleStyle is for subtle text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// WarningStyle is for non-fatal problems.
	WarningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	// Status styles
	PendingStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	RunningStyle = lipgloss.NewStyle().
			Foreground(colorActive).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	SkippedStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	plainStyle = lipgloss.NewStyle().
			Foreground(colorText)
)

// StatusStyle returns the style for an execution or step status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "pending":
		return PendingStyle
	case "running":
		return RunningStyle
	case "success":
		return SuccessStyle
	case "error":
		return ErrorStyle
	case "skipped":
		return SkippedStyle
	default:
		return plainStyle
	}
}

// Painter applies styles only when color output is enabled.
type Painter struct {
	color bool
}

// NewPainter creates a painter. With color false every method returns its
// input unchanged.
func NewPainter(color bool) Painter {
	return Painter{color: color}
}

// Status renders a status word.
func (p Painter) Status(status string) string {
	return p.Render(StatusStyle(status), status)
}

// Render applies style to s.
func (p Painter) Render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}
