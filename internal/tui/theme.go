// Package tui is the terminal front end: home menu, license activation, PIN
// join and the live tour screens, driven by the tour orchestrator.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	ColorBrand   = lipgloss.Color("#FFC226")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorLive    = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// Reusable styles.
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBrand)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBrand)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)

	StylePin = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBrand).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 2)

	StyleCountdown = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

// CountdownColor shifts as the remaining time runs out.
func CountdownColor(seconds int) lipgloss.Color {
	switch {
	case seconds <= 60:
		return ColorDanger
	case seconds <= 300:
		return ColorWarning
	default:
		return ColorBright
	}
}

// AudioGlyph marks the transport state on the live screens.
func AudioGlyph(live bool) string {
	if live {
		return lipgloss.NewStyle().Foreground(ColorLive).Render("● LIVE")
	}
	return StyleDimmed.Render("○ muted")
}
