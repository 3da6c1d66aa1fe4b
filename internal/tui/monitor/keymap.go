package monitor

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the monitor key bindings.
type KeyMap struct {
	ToggleInput       key.Binding
	ToggleOutput      key.Binding
	TogglePassthrough key.Binding
	Quit              key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		ToggleInput: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "toggle input"),
		),
		ToggleOutput: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "toggle output"),
		),
		TogglePassthrough: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "toggle voice"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleInput, k.ToggleOutput, k.TogglePassthrough, k.Quit}
}

// FullHelp returns all bindings.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
