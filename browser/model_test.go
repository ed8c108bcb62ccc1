package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/catalog"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/feed"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/scanner"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

type fakeLauncher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (l *fakeLauncher) Launch(ctx context.Context, locator, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, locator)
	return l.err
}

func (l *fakeLauncher) launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// newTestModel returns a sized model over Alpha (ID 1), Beta (ID 2, zip)
// and Gamma (ID 3), listed by title.
func newTestModel(t *testing.T) (Model, *feed.Feed, *fakeLauncher) {
	t.Helper()

	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/games/beta.zip", "beta.nsp")

	f := feed.New(fs, "/data/library.json", storage.DefaultConfig(), catalog.New())
	if err := f.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err := f.Update(func(lib *storage.Library) error {
		lib.AddGame(&storage.GameEntry{CRC32: "00000001", DisplayName: "Alpha", File: "/games/alpha.nsp", Company: "Alpha Co", Regions: []string{"us"}})
		lib.AddGame(&storage.GameEntry{CRC32: "00000002", DisplayName: "Beta", File: "/games/beta.zip"})
		lib.AddGame(&storage.GameEntry{CRC32: "00000003", DisplayName: "Gamma", File: "/games/gamma.xci"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	l := &fakeLauncher{}
	m := New(f.Cache(), f, l)
	t.Cleanup(m.Close)
	return update(m, tea.WindowSizeMsg{Width: 80, Height: 24}), f, l
}

func writeZip(t *testing.T, fs afero.Fs, path string, members ...string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range members {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(name))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		m = update(m, keyMsg(k))
	}
	return m
}

func lineWith(view, text string) string {
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, text) {
			return line
		}
	}
	return ""
}

func TestNewSelectsFirstEntry(t *testing.T) {
	m, _, _ := newTestModel(t)
	if m.cursor != 0 || m.selected != 1 {
		t.Errorf("cursor = %d, selected = %d; want 0, 1", m.cursor, m.selected)
	}
}

func TestNavigation(t *testing.T) {
	m, _, _ := newTestModel(t)

	tests := []struct {
		key    string
		cursor int
	}{
		{"down", 1},
		{"j", 2},
		{"j", 2},
		{"up", 1},
		{"g", 0},
		{"k", 0},
		{"G", 2},
	}
	for _, tc := range tests {
		m = press(m, tc.key)
		if m.cursor != tc.cursor {
			t.Fatalf("after %q cursor = %d, want %d", tc.key, m.cursor, tc.cursor)
		}
		if want := m.cache.StableID(tc.cursor); m.selected != want {
			t.Fatalf("after %q selected = %d, want %d", tc.key, m.selected, want)
		}
	}
}

func TestCursorFollowsStableIDAcrossSwap(t *testing.T) {
	m, f, _ := newTestModel(t)
	m = press(m, "down") // Beta

	err := f.Update(func(lib *storage.Library) error {
		lib.AddGame(&storage.GameEntry{CRC32: "00000004", DisplayName: "Aardvark", File: "/games/aardvark.nsp"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	select {
	case <-m.changed:
	default:
		t.Fatal("cache change was not signalled")
	}

	m = update(m, catalogChangedMsg{})
	if m.cursor != 2 || m.selected != 2 {
		t.Errorf("cursor = %d, selected = %d; want 2, 2", m.cursor, m.selected)
	}
}

func TestCursorClampsWhenEntryRemoved(t *testing.T) {
	m, f, _ := newTestModel(t)
	m = press(m, "G") // Gamma

	err := f.Update(func(lib *storage.Library) error {
		lib.RemoveGame("00000003")
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m = update(m, catalogChangedMsg{})
	if m.cursor != 1 || m.selected != 2 {
		t.Errorf("cursor = %d, selected = %d; want 1, 2", m.cursor, m.selected)
	}
}

func TestInvalidatedKeepsSelection(t *testing.T) {
	m, f, _ := newTestModel(t)
	m = press(m, "down")

	f.Cache().Invalidate()
	m = update(m, catalogChangedMsg{})
	if !strings.Contains(m.View(), "Reloading library...") {
		t.Error("invalidated cache should show the reloading notice")
	}
	if m.selected != 2 {
		t.Errorf("selected = %d, want 2", m.selected)
	}

	// A new snapshot with another entry ahead of Beta
	err := f.Update(func(lib *storage.Library) error {
		lib.AddGame(&storage.GameEntry{CRC32: "00000004", DisplayName: "Aardvark", File: "/games/aardvark.nsp"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	m = update(m, catalogChangedMsg{})
	if m.cursor != 2 || m.selected != 2 {
		t.Errorf("cursor = %d, selected = %d; want 2, 2", m.cursor, m.selected)
	}
}

func TestLaunch(t *testing.T) {
	m, f, l := newTestModel(t)

	next, cmd := m.Update(keyMsg("enter"))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected a launch command")
	}
	if !m.launching {
		t.Error("model should be launching")
	}

	msg := cmd()
	if calls := l.launched(); len(calls) != 1 || calls[0] != "/games/alpha.nsp" {
		t.Fatalf("launched %v", calls)
	}

	m = update(m, msg)
	if m.launching {
		t.Error("launch should be finished")
	}
	if !strings.Contains(m.status, "Played Alpha") {
		t.Errorf("status = %q", m.status)
	}
	game, _ := f.Game(1)
	if game.LastPlayed == 0 {
		t.Error("play was not recorded")
	}
}

func TestLaunchRefusesArchive(t *testing.T) {
	m, _, l := newTestModel(t)
	m = press(m, "down") // Beta, a zip

	next, cmd := m.Update(keyMsg("enter"))
	m = next.(Model)
	if m.launching {
		t.Error("archives must not start a launch")
	}
	if !m.statusErr || !strings.Contains(m.View(), "cannot be launched directly") {
		t.Errorf("status = %q", m.status)
	}
	if cmd == nil {
		t.Fatal("expected the archive contents to be listed")
	}

	msg := cmd()
	if _, ok := msg.(membersMsg); !ok {
		t.Fatalf("expected membersMsg, got %T", msg)
	}
	if len(l.launched()) != 0 {
		t.Error("launcher should not be called")
	}

	m = update(m, msg)
	if !strings.Contains(m.status, "(beta.nsp)") || !strings.Contains(m.status, "cannot be launched directly") {
		t.Errorf("status = %q", m.status)
	}
}

// addAardvark installs a snapshot with a new first row without delivering
// the change message, as a background swap would.
func addAardvark(t *testing.T, f *feed.Feed) {
	t.Helper()
	err := f.Update(func(lib *storage.Library) error {
		lib.AddGame(&storage.GameEntry{CRC32: "00000004", DisplayName: "Aardvark", File: "/games/aardvark.nsp"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func TestFavoriteFollowsSelectionAfterSwap(t *testing.T) {
	m, f, _ := newTestModel(t)

	addAardvark(t, f)
	m = press(m, "*")

	if game, _ := f.Game(1); !game.Favorite {
		t.Error("Alpha should be the favorite")
	}
	if game, _ := f.Game(4); game.Favorite {
		t.Error("Aardvark took the row but should not be touched")
	}
	if m.cursor != 1 || m.selected != 1 {
		t.Errorf("cursor = %d, selected = %d; want 1, 1", m.cursor, m.selected)
	}
}

func TestLaunchFollowsSelectionAfterSwap(t *testing.T) {
	m, f, l := newTestModel(t)

	addAardvark(t, f)
	next, cmd := m.Update(keyMsg("enter"))
	if cmd == nil {
		t.Fatal("expected a launch command")
	}
	update(next.(Model), cmd())

	if calls := l.launched(); len(calls) != 1 || calls[0] != "/games/alpha.nsp" {
		t.Errorf("launched %v, want Alpha", calls)
	}
}

func TestLaunchSelectionRemoved(t *testing.T) {
	m, f, l := newTestModel(t)

	err := f.Update(func(lib *storage.Library) error {
		lib.RemoveGame("00000001")
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	next, cmd := m.Update(keyMsg("enter"))
	m = next.(Model)
	if cmd != nil || len(l.launched()) != 0 {
		t.Error("nothing should launch when the selected game is gone")
	}
	if !m.statusErr || !strings.Contains(m.status, "no longer in the list") {
		t.Errorf("status = %q", m.status)
	}
	if m.selected != 2 {
		t.Errorf("selected = %d, want 2", m.selected)
	}
}

func TestLaunchFailure(t *testing.T) {
	m, f, l := newTestModel(t)
	l.err = errors.New("emulator missing")

	next, cmd := m.Update(keyMsg("enter"))
	m = update(next.(Model), cmd())

	if !m.statusErr || !strings.Contains(m.status, "emulator missing") {
		t.Errorf("status = %q", m.status)
	}
	if game, _ := f.Game(1); game.LastPlayed != 0 {
		t.Error("failed launches are not plays")
	}
}

func TestSearch(t *testing.T) {
	m, f, _ := newTestModel(t)

	m = press(m, "/")
	if !m.searching {
		t.Fatal("expected search mode")
	}

	m = press(m, "a")
	if got := m.cache.Count(); got != 3 {
		t.Errorf("count for %q = %d, want 3", m.query, got)
	}

	m = press(m, "l")
	if got := f.View().Search; got != "al" {
		t.Errorf("view search = %q, want %q", got, "al")
	}
	if got := m.cache.Count(); got != 1 {
		t.Errorf("count for %q = %d, want 1", m.query, got)
	}
	if !strings.Contains(m.View(), "/al") {
		t.Error("query not shown while typing")
	}

	m = press(m, "backspace")
	if m.query != "a" || m.cache.Count() != 3 {
		t.Errorf("after backspace query = %q, count = %d", m.query, m.cache.Count())
	}

	// Typed keys do not trigger list bindings while searching
	m = press(m, "q")
	if m.query != "aq" {
		t.Errorf("query = %q, want %q", m.query, "aq")
	}
	if !strings.Contains(m.View(), "No games match.") {
		t.Error("empty search result should say so")
	}

	m = press(m, "esc")
	if m.searching || m.query != "" || f.View().Search != "" {
		t.Error("esc should clear the search")
	}
	if m.cache.Count() != 3 {
		t.Errorf("count = %d, want 3", m.cache.Count())
	}
}

func TestSearchAcceptKeepsFilter(t *testing.T) {
	m, f, _ := newTestModel(t)

	m = press(m, "/", "g", "a", "m", "enter")
	if m.searching {
		t.Error("enter should leave search mode")
	}
	if f.View().Search != "gam" || m.cache.Count() != 1 {
		t.Errorf("search = %q, count = %d", f.View().Search, m.cache.Count())
	}
	if m.selected != 3 {
		t.Errorf("selected = %d, want 3", m.selected)
	}
}

func TestSearchArrowKeepsFilter(t *testing.T) {
	m, f, _ := newTestModel(t)

	m = press(m, "/", "a", "down")
	if m.searching {
		t.Error("arrow keys should leave search mode")
	}
	if f.View().Search != "a" {
		t.Errorf("search = %q, want %q", f.View().Search, "a")
	}
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestFavorites(t *testing.T) {
	m, f, _ := newTestModel(t)

	m = press(m, "*")
	if game, _ := f.Game(1); !game.Favorite {
		t.Fatal("Alpha should be a favorite")
	}
	if !strings.Contains(m.status, "Added Alpha") {
		t.Errorf("status = %q", m.status)
	}

	m = press(m, "f")
	if !f.View().FavoritesOnly || m.cache.Count() != 1 {
		t.Errorf("favorites only = %v, count = %d", f.View().FavoritesOnly, m.cache.Count())
	}
	if header := strings.Split(m.View(), "\n")[0]; !strings.Contains(header, "favorites") {
		t.Errorf("header should show the favorites filter: %q", header)
	}

	m = press(m, "*", "f")
	if game, _ := f.Game(1); game.Favorite {
		t.Error("Alpha should no longer be a favorite")
	}
	if m.cache.Count() != 3 {
		t.Errorf("count = %d, want 3", m.cache.Count())
	}
}

func TestSortCycle(t *testing.T) {
	m, f, _ := newTestModel(t)

	for _, want := range []string{storage.SortLastPlayed, storage.SortPlayTime, storage.SortAdded, storage.SortTitle} {
		m = press(m, "s")
		if got := f.View().SortBy; got != want {
			t.Fatalf("sort = %q, want %q", got, want)
		}
	}
	if m.selected != 1 {
		t.Errorf("selection lost while sorting: %d", m.selected)
	}
}

func TestNextSort(t *testing.T) {
	tests := []struct {
		current string
		want    string
	}{
		{storage.SortTitle, storage.SortLastPlayed},
		{storage.SortAdded, storage.SortTitle},
		{"bogus", storage.SortTitle},
	}
	for _, tc := range tests {
		if got := nextSort(tc.current); got != tc.want {
			t.Errorf("nextSort(%q) = %q, want %q", tc.current, got, tc.want)
		}
	}
}

func TestScanSummary(t *testing.T) {
	tests := []struct {
		name   string
		result scanner.Result
		err    error
		want   string
	}{
		{"up to date", scanner.Result{}, nil, "Library up to date"},
		{"new games", scanner.Result{NewGames: 2, Missing: 1}, nil, "Found 2 new games, 1 missing"},
		{"failed", scanner.Result{}, errors.New("disk gone"), "Scan failed: disk gone"},
		{"cancelled", scanner.Result{Cancelled: true}, nil, "Scan cancelled"},
		{"errors only", scanner.Result{Errors: []error{errors.New("unreadable")}}, nil, "unreadable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := scanSummary(tc.result, tc.err); got != tc.want {
				t.Errorf("scanSummary = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestView(t *testing.T) {
	m, _, _ := newTestModel(t)
	view := m.View()

	if !strings.Contains(view, "3 games") {
		t.Error("header should show the game count")
	}

	alpha := lineWith(view, "Alpha")
	if !strings.HasPrefix(alpha, CursorMarker) {
		t.Errorf("selected row = %q", alpha)
	}
	if !strings.Contains(alpha, "Alpha Co") || !strings.Contains(alpha, "US") {
		t.Errorf("caption or regions missing from %q", alpha)
	}
	if strings.Contains(alpha, ArchiveTag) {
		t.Error("Alpha is launchable")
	}
	if beta := lineWith(view, "Beta"); !strings.Contains(beta, ArchiveTag) {
		t.Errorf("archive row = %q", beta)
	}

	if got := strings.Count(view, "\n"); got != m.height-1 {
		t.Errorf("view has %d lines, want %d", got+1, m.height)
	}
}

func TestViewScrollsToCursor(t *testing.T) {
	m, f, _ := newTestModel(t)
	err := f.Update(func(lib *storage.Library) error {
		for i := 0; i < 40; i++ {
			lib.AddGame(&storage.GameEntry{
				CRC32:       fmt.Sprintf("1000%04x", i),
				DisplayName: fmt.Sprintf("Zed %c%d", 'a'+i/10, i%10),
				File:        "/games/zed.nsp",
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	m = update(m, catalogChangedMsg{})

	m = press(m, "G")
	if m.cursor != 42 {
		t.Fatalf("cursor = %d, want 42", m.cursor)
	}
	if m.offset == 0 {
		t.Error("list should have scrolled")
	}
	if !strings.Contains(m.View(), "Zed d9") || strings.Contains(m.View(), "Alpha") {
		t.Error("visible rows should follow the cursor")
	}
}

func TestViewEmptyLibrary(t *testing.T) {
	f := feed.New(afero.NewMemMapFs(), "/data/library.json", storage.DefaultConfig(), catalog.New())
	if err := f.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	m := New(f.Cache(), f, &fakeLauncher{})
	defer m.Close()
	m = update(m, tea.WindowSizeMsg{Width: 80, Height: 24})

	if !strings.Contains(m.View(), "No games yet") {
		t.Error("empty library should explain how to add games")
	}

	next, cmd := m.Update(keyMsg("enter"))
	if cmd != nil || next.(Model).cursor != 0 {
		t.Error("enter on an empty list should do nothing")
	}
}

func TestCloseStopsNotifications(t *testing.T) {
	m, f, _ := newTestModel(t)
	select {
	case <-m.changed:
	default:
	}

	m.Close()
	f.Refresh()

	select {
	case <-m.changed:
		t.Error("closed model still notified")
	default:
	}
}

func TestTeatestScanAndQuit(t *testing.T) {
	m, _, _ := newTestModel(t)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Alpha"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(keyMsg("r"))
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Library up to date"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(keyMsg("q"))
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	final := tm.FinalModel(t).(Model)
	if final.scanning {
		t.Error("scan should be finished")
	}
	if final.selected != 1 {
		t.Errorf("selected = %d, want 1", final.selected)
	}
}
