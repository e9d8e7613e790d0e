package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings.
type KeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Back  key.Binding
	Audio key.Binding
	Leave key.Binding
	Quit  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Audio: key.NewBinding(
			key.WithKeys("a", " "),
			key.WithHelp("a/space", "toggle audio"),
		),
		Leave: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "end/leave tour"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
