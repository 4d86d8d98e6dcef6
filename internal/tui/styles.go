package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
	colorDone   = lipgloss.Color("42")
	colorActive = lipgloss.Color("220")
	colorRetry  = lipgloss.Color("208")
	colorFailed = lipgloss.Color("196")
	colorStuck  = lipgloss.Color("165")
)

var (
	StyleFocusedBorder   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent)
	StyleUnfocusedBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted)

	StyleTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	StyleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
	StyleFlash    = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

// One style per task state; pending and cancelled tasks use StyleMuted.
var (
	StyleStatusRunning   = lipgloss.NewStyle().Foreground(colorActive).Bold(true)
	StyleStatusRetrying  = lipgloss.NewStyle().Foreground(colorRetry)
	StyleStatusCompleted = lipgloss.NewStyle().Foreground(colorDone).Bold(true)
	StyleStatusFailed    = lipgloss.NewStyle().Foreground(colorFailed).Bold(true)
	StyleStatusStalled   = lipgloss.NewStyle().Foreground(colorStuck)
)
