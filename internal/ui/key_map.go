package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	send     key.Binding
	edit     key.Binding
	remove   key.Binding
	cancel   key.Binding
	pageUp   key.Binding
	pageDown key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		edit:     key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "edit last")),
		remove:   key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "delete last")),
		cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel edit")),
		pageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		pageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.send, k.edit, k.remove, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.send, k.edit, k.remove, k.cancel},
		{k.pageUp, k.pageDown, k.quit},
	}
}
