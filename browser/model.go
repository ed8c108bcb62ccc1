// Package browser is the terminal game list. It reads the catalog cache
// positionally, row by row, and redraws whenever the cache is swapped or
// invalidated.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/catalog"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/launcher"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/scanner"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

// Source is the library the catalog is built from
type Source interface {
	View() storage.LibraryView
	SetView(view storage.LibraryView)
	Update(fn func(lib *storage.Library) error) error
	Scan(ctx context.Context, rescanAll bool, onProgress func(scanner.Progress)) (scanner.Result, error)
	RecordPlay(id int64, played time.Duration) error
	Members(id int64) ([]string, error)
}

// catalogChangedMsg signals that the cache was swapped or invalidated
type catalogChangedMsg struct{}

type scanProgressMsg struct {
	progress scanner.Progress
	ch       <-chan scanner.Progress
}

type scanDoneMsg struct {
	result scanner.Result
	err    error
}

// membersMsg lists what is inside an archive that was refused a launch
type membersMsg struct {
	title   string
	members []string
	err     error
}

type launchDoneMsg struct {
	id     int64
	title  string
	played time.Duration
	err    error
}

// chromeHeight is the number of lines used by the header and status bars
const chromeHeight = 2

// Model is the Bubble Tea model for the game list
type Model struct {
	cache    *catalog.Cache
	source   Source
	launcher launcher.Launcher

	changed     chan struct{}
	unsubscribe func()

	keys       keyMap
	searchKeys searchKeys
	help       help.Model
	spinner    spinner.Model

	width  int
	height int

	cursor   int
	selected int64 // Stable ID under the cursor
	offset   int   // First visible row

	searching bool
	query     string

	scanning  bool
	launching bool
	status    string
	statusErr bool
}

// New creates a Model over cache. It subscribes to cache changes until
// Close is called.
func New(cache *catalog.Cache, source Source, l launcher.Launcher) Model {
	changed := make(chan struct{}, 1)
	unsubscribe := cache.Subscribe(func() {
		// Coalesce, never block the goroutine that changed the cache
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		cache:       cache,
		source:      source,
		launcher:    l,
		changed:     changed,
		unsubscribe: unsubscribe,
		keys:        defaultKeyMap(),
		searchKeys:  defaultSearchKeys(),
		help:        help.New(),
		spinner:     s,
		query:       source.View().Search,
	}
	return m.resync()
}

// Close stops listening for cache changes
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init waits for the first cache change
func (m Model) Init() tea.Cmd {
	return waitForChange(m.changed)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return catalogChangedMsg{}
	}
}

func waitForProgress(ch <-chan scanner.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return scanProgressMsg{progress: p, ch: ch}
	}
}

// Update handles incoming messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m.scrollToCursor(), nil

	case catalogChangedMsg:
		return m.resync(), waitForChange(m.changed)

	case scanProgressMsg:
		if msg.progress.FilesFound > 0 {
			m.status = fmt.Sprintf("Scanning... %d/%d", msg.progress.FilesDone, msg.progress.FilesFound)
		}
		return m, waitForProgress(msg.ch)

	case scanDoneMsg:
		m.scanning = false
		m.status = scanSummary(msg.result, msg.err)
		m.statusErr = msg.err != nil
		return m, nil

	case launchDoneMsg:
		m.launching = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Could not start %s: %v", msg.title, msg.err)
			m.statusErr = true
			return m, nil
		}
		if err := m.source.RecordPlay(msg.id, msg.played); err != nil {
			m.status = fmt.Sprintf("Could not record play time: %v", err)
			m.statusErr = true
			return m, nil
		}
		m.status = fmt.Sprintf("Played %s for %s", msg.title, msg.played.Round(time.Second))
		m.statusErr = false
		return m, nil

	case membersMsg:
		if msg.err != nil || len(msg.members) == 0 {
			return m, nil
		}
		m.status = fmt.Sprintf("%s is packed in an archive (%s) and cannot be launched directly",
			msg.title, strings.Join(msg.members, ", "))
		m.statusErr = true
		return m, nil

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey processes keys for the list
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		return m.moveTo(m.cursor - 1), nil
	case key.Matches(msg, m.keys.Down):
		return m.moveTo(m.cursor + 1), nil
	case key.Matches(msg, m.keys.PageUp):
		return m.moveTo(m.cursor - m.listHeight()), nil
	case key.Matches(msg, m.keys.PageDown):
		return m.moveTo(m.cursor + m.listHeight()), nil
	case key.Matches(msg, m.keys.Home):
		return m.moveTo(0), nil
	case key.Matches(msg, m.keys.End):
		return m.moveTo(m.cache.Count() - 1), nil
	case key.Matches(msg, m.keys.Launch):
		return m.launch()
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, nil
	case key.Matches(msg, m.keys.Favorites):
		view := m.source.View()
		view.FavoritesOnly = !view.FavoritesOnly
		return m.setView(view), nil
	case key.Matches(msg, m.keys.Favorite):
		return m.toggleFavorite(), nil
	case key.Matches(msg, m.keys.Sort):
		view := m.source.View()
		view.SortBy = nextSort(view.SortBy)
		m.status = "Sorted by " + sortLabel(view.SortBy)
		m.statusErr = false
		return m.setView(view), nil
	case key.Matches(msg, m.keys.Rescan):
		return m.startScan(false)
	case key.Matches(msg, m.keys.RescanAll):
		return m.startScan(true)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m.scrollToCursor(), nil
	}
	return m, nil
}

// handleSearchKey edits the search query, filtering as it is typed
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.searchKeys.Cancel):
		m.searching = false
		m.query = ""
		return m.applySearch(), nil
	case key.Matches(msg, m.searchKeys.Accept):
		m.searching = false
		return m, nil
	case msg.Type == tea.KeyUp || msg.Type == tea.KeyDown:
		// Arrows keep the filter and move the cursor
		m.searching = false
		return m.handleKey(msg)
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.query += " "
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	default:
		return m, nil
	}
	return m.applySearch(), nil
}

func (m Model) applySearch() Model {
	view := m.source.View()
	view.Search = m.query
	return m.setView(view)
}

// setView changes the library view. The new snapshot is installed
// synchronously, so the cursor can follow it right away.
func (m Model) setView(view storage.LibraryView) Model {
	m.source.SetView(view)
	return m.resync()
}

// resync puts the cursor back on the selected entry after the catalog
// changed, or keeps it in bounds if that entry is gone. While the cache is
// not Valid the selection is kept for the next snapshot.
func (m Model) resync() Model {
	if m.cache.State() != catalog.StateValid {
		return m
	}
	if idx := m.cache.Current().IndexOf(m.selected); idx >= 0 {
		return m.moveTo(idx)
	}
	return m.moveTo(m.cursor)
}

// moveTo places the cursor on row i, clamped to the catalog
func (m Model) moveTo(i int) Model {
	if count := m.cache.Count(); i >= count {
		i = count - 1
	}
	if i < 0 {
		i = 0
	}
	m.cursor = i
	m.selected = m.cache.StableID(i)
	return m.scrollToCursor()
}

func (m Model) scrollToCursor() Model {
	rows := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
	return m
}

// listHeight returns the number of rows available for games
func (m Model) listHeight() int {
	h := m.height - chromeHeight - lipgloss.Height(m.helpView())
	if h < 1 {
		return 1
	}
	return h
}

// selectedEntry returns the entry the user selected, wherever the current
// snapshot has moved it. The cursor follows it.
func (m Model) selectedEntry() (Model, catalog.Entry, bool) {
	snapshot := m.cache.Current()
	idx := snapshot.IndexOf(m.selected)
	if idx < 0 {
		m.status = "The selected game is no longer in the list"
		m.statusErr = true
		return m.resync(), catalog.Entry{}, false
	}
	entry, _ := snapshot.At(idx)
	m.cursor = idx
	return m.scrollToCursor(), entry, true
}

// launch starts the selected game if it can be launched directly
func (m Model) launch() (tea.Model, tea.Cmd) {
	if m.launching || m.selected == catalog.NoID {
		return m, nil
	}
	m, entry, ok := m.selectedEntry()
	if !ok {
		return m, nil
	}

	title := entry.DisplayTitle()
	if !entry.Launchable() {
		m.status = fmt.Sprintf("%s is packed in an archive and cannot be launched directly", title)
		m.statusErr = true
		source := m.source
		return m, func() tea.Msg {
			members, err := source.Members(entry.ID)
			return membersMsg{title: title, members: members, err: err}
		}
	}

	m.launching = true
	m.status = "Starting " + title
	m.statusErr = false

	l := m.launcher
	return m, func() tea.Msg {
		start := time.Now()
		err := l.Launch(context.Background(), entry.Locator, title)
		return launchDoneMsg{id: entry.ID, title: title, played: time.Since(start), err: err}
	}
}

// toggleFavorite flips the favorite flag of the selected game
func (m Model) toggleFavorite() Model {
	if m.selected == catalog.NoID {
		return m
	}
	m, entry, ok := m.selectedEntry()
	if !ok {
		return m
	}

	var title string
	var favorite bool
	err := m.source.Update(func(lib *storage.Library) error {
		game := lib.GetGameByID(entry.ID)
		if game == nil {
			return fmt.Errorf("game %d is no longer in the library", entry.ID)
		}
		game.Favorite = !game.Favorite
		title, favorite = game.DisplayName, game.Favorite
		return nil
	})

	switch {
	case err != nil:
		m.status = err.Error()
		m.statusErr = true
	case favorite:
		m.status = "Added " + title + " to favorites"
		m.statusErr = false
	default:
		m.status = "Removed " + title + " from favorites"
		m.statusErr = false
	}
	return m.resync()
}

// startScan runs a library scan in the background
func (m Model) startScan(rescanAll bool) (tea.Model, tea.Cmd) {
	if m.scanning {
		return m, nil
	}
	m.scanning = true
	m.status = "Scanning..."
	m.statusErr = false

	progress := make(chan scanner.Progress, 16)
	source := m.source
	scan := func() tea.Msg {
		defer close(progress)
		result, err := source.Scan(context.Background(), rescanAll, func(p scanner.Progress) {
			select {
			case progress <- p:
			default:
			}
		})
		return scanDoneMsg{result: result, err: err}
	}

	return m, tea.Batch(scan, waitForProgress(progress), m.spinner.Tick)
}

func scanSummary(result scanner.Result, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("Scan failed: %v", err)
	case result.Cancelled:
		return "Scan cancelled"
	case result.NewGames > 0 || result.Missing > 0:
		return fmt.Sprintf("Found %d new games, %d missing", result.NewGames, result.Missing)
	case len(result.Errors) > 0:
		return result.Errors[0].Error()
	default:
		return "Library up to date"
	}
}

// nextSort returns the sort order after current
func nextSort(current string) string {
	for i, s := range storage.SortOrders {
		if s == current {
			return storage.SortOrders[(i+1)%len(storage.SortOrders)]
		}
	}
	return storage.SortTitle
}

func sortLabel(sortBy string) string {
	switch sortBy {
	case storage.SortLastPlayed:
		return "last played"
	case storage.SortPlayTime:
		return "play time"
	case storage.SortAdded:
		return "date added"
	default:
		return "title"
	}
}

// View renders the header, game list, status line and help bar
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.listView())
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.helpView())
	return b.String()
}

func (m Model) headerView() string {
	view := m.source.View()

	parts := []string{headerStyle.Render("yuzu-catalog")}
	if m.cache.State() == catalog.StateValid {
		parts = append(parts, fmt.Sprintf("%d games", m.cache.Count()))
	}
	parts = append(parts, "sort: "+sortLabel(view.SortBy))
	if view.FavoritesOnly {
		parts = append(parts, "favorites")
	}
	switch {
	case m.searching:
		parts = append(parts, searchStyle.Render("/"+m.query+"█"))
	case m.query != "":
		parts = append(parts, searchStyle.Render("search: "+m.query))
	}
	return strings.Join(parts, "  ")
}

// listView renders exactly listHeight lines, reading only visible rows
func (m Model) listView() string {
	rows := m.listHeight()
	lines := make([]string, 0, rows)

	switch m.cache.State() {
	case catalog.StateInvalidated:
		lines = append(lines, statusStyle.Render("Reloading library..."))
	case catalog.StateEmpty:
		lines = append(lines, statusStyle.Render("Loading library..."))
	default:
		count := m.cache.Count()
		if count == 0 {
			view := m.source.View()
			if view.FavoritesOnly || view.Search != "" {
				lines = append(lines, statusStyle.Render("No games match."))
			} else {
				lines = append(lines, statusStyle.Render("No games yet. Press r to scan your game directories."))
			}
		}
		for i := m.offset; i < count && len(lines) < rows; i++ {
			entry, err := m.cache.EntryAt(i)
			if err != nil {
				// Swapped mid-render, the change message redraws
				break
			}
			lines = append(lines, m.rowView(entry, i == m.cursor))
		}
	}

	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i < len(lines) {
			b.WriteString(lines[i])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) rowView(entry catalog.Entry, selected bool) string {
	marker := "  "
	if selected {
		marker = CursorMarker
	}
	launchable := entry.Launchable()

	parts := []string{marker + rowStyle(selected, launchable).Render(entry.DisplayTitle())}
	if entry.Caption != "" {
		parts = append(parts, captionStyle.Render(entry.Caption))
	}
	if len(entry.Regions) > 0 {
		parts = append(parts, captionStyle.Render(strings.ToUpper(strings.Join(entry.Regions, ","))))
	}
	if !launchable {
		parts = append(parts, archivedStyle.Render(ArchiveTag))
	}

	return lipgloss.NewStyle().MaxWidth(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) statusView() string {
	text := m.status
	if m.scanning {
		text = m.spinner.View() + " " + text
	}
	if m.statusErr {
		return errorStyle.Render(text)
	}
	return statusStyle.Render(text)
}

func (m Model) helpView() string {
	if m.searching {
		return m.help.View(m.searchKeys)
	}
	return m.help.View(m.keys)
}
