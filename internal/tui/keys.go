package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings with built-in help text.
type KeyMap struct {
	// Global
	Quit      key.Binding
	ForceQuit key.Binding
	Help      key.Binding
	Escape    key.Binding
	Overview  key.Binding
	Browse    key.Binding
	Pipeline  key.Binding
	Refresh   key.Binding

	// Navigation
	NextDataset key.Binding
	PrevDataset key.Binding
	Up          key.Binding
	Down        key.Binding
	Enter       key.Binding
	PrevPage    key.Binding
	NextPage    key.Binding
	FirstPage   key.Binding
	LastPage    key.Binding

	// Browse actions
	Search       key.Binding
	Filters      key.Binding
	ClearFilters key.Binding
	PrevColumn   key.Binding
	NextColumn   key.Binding
	SortColumn   key.Binding
	SortReverse  key.Binding
	Export       key.Binding
	Evidence     key.Binding

	// Filter modal
	PrevValue key.Binding
	NextValue key.Binding

	// Pipeline actions
	EditForm    key.Binding
	NextField   key.Binding
	PrevField   key.Binding
	Upload      key.Binding
	Analyze     key.Binding
	LogTail     key.Binding
	OpenResults key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("escape", "esc"),
			key.WithHelp("esc", "cancel/close"),
		),
		Overview: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "overview"),
		),
		Browse: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "browse"),
		),
		Pipeline: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "ingest"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),

		NextDataset: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next dataset"),
		),
		PrevDataset: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev dataset"),
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
			key.WithHelp("enter", "details"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("left", "h", "pgup"),
			key.WithHelp("←/h", "prev page"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("right", "l", "pgdown"),
			key.WithHelp("→/l", "next page"),
		),
		FirstPage: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "first page"),
		),
		LastPage: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "last page"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Filters: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "filters"),
		),
		ClearFilters: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear filters"),
		),
		PrevColumn: key.NewBinding(
			key.WithKeys("<", ","),
			key.WithHelp("<", "prev column"),
		),
		NextColumn: key.NewBinding(
			key.WithKeys(">", "."),
			key.WithHelp(">", "next column"),
		),
		SortColumn: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sort by column"),
		),
		SortReverse: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "reverse sort"),
		),
		Export: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "export page"),
		),
		Evidence: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "open evidence"),
		),

		PrevValue: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev value"),
		),
		NextValue: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next value"),
		),

		EditForm: key.NewBinding(
			key.WithKeys("i", "enter"),
			key.WithHelp("i", "edit form"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "prev field"),
		),
		Upload: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "upload"),
		),
		Analyze: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "analyze"),
		),
		LogTail: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "parser log"),
		),
		OpenResults: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "browse results"),
		),
	}
}
