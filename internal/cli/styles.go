// Package cli renders tasks, plugins, search results and scheduler events for the terminal.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/NamanBalaji/tunedl/internal/status"
)

var (
	Base     = lipgloss.Color("#1e1e2e")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Surface0 = lipgloss.Color("#313244")

	Mauve    = lipgloss.Color("#cba6f7")
	Red      = lipgloss.Color("#f38ba8")
	Peach    = lipgloss.Color("#fab387")
	Yellow   = lipgloss.Color("#f9e2af")
	Green    = lipgloss.Color("#a6e3a1")
	Teal     = lipgloss.Color("#94e2d5")
	Sapphire = lipgloss.Color("#74c7ec")
	Lavender = lipgloss.Color("#b4befe")
)

var (
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Base).
			Background(Red).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Base).
			Background(Green).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(Lavender).
			Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(Text)

	FaintStyle = lipgloss.NewStyle().Foreground(Subtext0)

	IDStyle = lipgloss.NewStyle().Foreground(Sapphire)

	ProgressBarEmptyStyle = lipgloss.NewStyle().Foreground(Surface0)

	StatusDownloading = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	StatusPending     = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StatusRetrying    = lipgloss.NewStyle().Foreground(Mauve).Bold(true)
	StatusPaused      = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	StatusCompleted   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusFailed      = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

// statusColor is the bar colour for st.
func statusColor(st status.Status) lipgloss.Color {
	switch st {
	case status.Downloading:
		return Teal
	case status.Retrying:
		return Mauve
	case status.Paused:
		return Peach
	case status.Completed:
		return Green
	case status.Failed:
		return Red
	default:
		return Yellow
	}
}

// StatusLabel returns the styled label shown next to a task.
func StatusLabel(st status.Status) string {
	switch st {
	case status.Downloading:
		return StatusDownloading.Render("● downloading")
	case status.Pending:
		return StatusPending.Render("○ pending")
	case status.Retrying:
		return StatusRetrying.Render("↻ retrying")
	case status.Paused:
		return StatusPaused.Render("❚❚ paused")
	case status.Completed:
		return StatusCompleted.Render("✔ completed")
	case status.Failed:
		return StatusFailed.Render("✖ failed")
	default:
		return StatusFailed.Render("unknown")
	}
}
