package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/key"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// KeyMap defines all browser key bindings with built-in help text.
type KeyMap struct {
	// Global
	Quit      key.Binding
	ForceQuit key.Binding
	Help      key.Binding
	Escape    key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Back     key.Binding
	Refresh  key.Binding
	EditBar  key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Modules  []key.Binding

	// Actions
	Release key.Binding
	Delete  key.Binding
	Period  key.Binding
}

var moduleNames = []string{"accounts", "webmail", "quarantine", "stats", "settings"}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	km := KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "h"),
			key.WithHelp("?/h", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close item/cancel"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "previous page"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "backspace"),
			key.WithHelp("b", "back"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload"),
		),
		EditBar: key.NewBinding(
			key.WithKeys("/", ":"),
			key.WithHelp("/", "edit location"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),

		Release: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "release"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Period: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "stats period"),
		),
	}

	for i := range model.ModuleLocations {
		n := strconv.Itoa(i + 1)
		name := "module"
		if i < len(moduleNames) {
			name = moduleNames[i]
		}
		km.Modules = append(km.Modules, key.NewBinding(
			key.WithKeys(n),
			key.WithHelp(n, name),
		))
	}
	return km
}

type keyHelp struct {
	key, desc string
}

func helpFor(bindings ...key.Binding) []keyHelp {
	out := make([]keyHelp, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		out = append(out, keyHelp{key: h.Key, desc: h.Desc})
	}
	return out
}
