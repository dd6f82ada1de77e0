package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the review screen shortcuts.
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	// Selection
	ToggleSelect       key.Binding
	SelectAll          key.Binding
	DeselectDuplicates key.Binding

	// Categories
	Override      key.Binding
	ClearOverride key.Binding

	// Application
	Confirm    key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
	ToggleHelp key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+b"),
			key.WithHelp("PgUp/Ctrl+B", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+f"),
			key.WithHelp("PgDn/Ctrl+F", "page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("Home/g", "go to start"),
		),
		End: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("End/G", "go to end"),
		),

		ToggleSelect: key.NewBinding(
			key.WithKeys(" ", "x"),
			key.WithHelp("Space/x", "toggle row"),
		),
		SelectAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "select all"),
		),
		DeselectDuplicates: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "deselect duplicates"),
		),

		Override: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "change category"),
		),
		ClearOverride: key.NewBinding(
			key.WithKeys("u", "backspace"),
			key.WithHelp("u", "undo category change"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter", "s"),
			key.WithHelp("Enter/s", "save selected"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q/Esc", "cancel import"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("Ctrl+C", "force quit"),
		),
		ToggleHelp: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleSelect, k.Override, k.Confirm, k.Quit, k.ToggleHelp}
}

// FullHelp returns all key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		{k.ToggleSelect, k.SelectAll, k.DeselectDuplicates},
		{k.Override, k.ClearOverride},
		{k.Confirm, k.Quit, k.ToggleHelp},
	}
}
