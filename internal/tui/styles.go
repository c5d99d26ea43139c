package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"scrapectl/internal/ui"
)

var (
	colorPrimary = lipgloss.Color("62")  // Purple/blue
	colorSuccess = lipgloss.Color("42")  // Green
	colorError   = lipgloss.Color("196") // Red
	colorWarning = lipgloss.Color("214") // Orange/Yellow
	colorInfo    = lipgloss.Color("39")  // Cyan
	colorMuted   = lipgloss.Color("240") // Dark gray
	colorBorder  = lipgloss.Color("238") // Border gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	fieldLabelStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Width(10)

	selectedMarkerStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	choiceStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Underline(true)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorBorder)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	fieldErrorStyle = lipgloss.NewStyle().
			Foreground(colorError)
)

// toneStyles colours the status line.
var toneStyles = map[ui.Tone]lipgloss.Style{
	ui.ToneNeutral: mutedStyle,
	ui.ToneBusy:    lipgloss.NewStyle().Foreground(colorInfo),
	ui.ToneSuccess: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
	ui.ToneWarning: lipgloss.NewStyle().Foreground(colorWarning),
	ui.ToneError:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
}

func renderTitle(title string) string {
	return "\n" + titleStyle.Render(title) + "\n"
}

func renderDivider(length int) string {
	return dividerStyle.Render(strings.Repeat("─", length))
}

func renderStatus(e ui.Effects) string {
	style, ok := toneStyles[e.Tone]
	if !ok {
		style = mutedStyle
	}
	return style.Render(e.Status)
}
