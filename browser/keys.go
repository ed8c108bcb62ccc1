package browser

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the key bindings for the game list
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Home      key.Binding
	End       key.Binding
	Launch    key.Binding
	Search    key.Binding
	Favorites key.Binding
	Favorite  key.Binding
	Sort      key.Binding
	Rescan    key.Binding
	RescanAll key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// ShortHelp returns the bindings for the help bar
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Launch, k.Search, k.Favorites, k.Sort, k.Rescan, k.Help, k.Quit}
}

// FullHelp returns the bindings grouped for expanded help
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		{k.Launch, k.Search, k.Favorites, k.Favorite, k.Sort},
		{k.Rescan, k.RescanAll, k.Help, k.Quit},
	}
}

// searchKeys holds the bindings active while typing a search
type searchKeys struct {
	Accept key.Binding
	Cancel key.Binding
}

// ShortHelp returns the search bindings for the help bar
func (k searchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Accept, k.Cancel}
}

// FullHelp returns the search bindings grouped for expanded help
func (k searchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Accept, k.Cancel}}
}

// defaultKeyMap returns the key bindings for the game list
func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "first"),
		),
		End: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "last"),
		),
		Launch: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "play"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Favorites: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "favorites"),
		),
		Favorite: key.NewBinding(
			key.WithKeys("*"),
			key.WithHelp("*", "mark favorite"),
		),
		Sort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sort"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "scan"),
		),
		RescanAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "full rescan"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// defaultSearchKeys returns the bindings used while typing a search
func defaultSearchKeys() searchKeys {
	return searchKeys{
		Accept: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "keep filter"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear"),
		),
	}
}
