package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/browser"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/catalog"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/feed"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/launcher"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/scanner"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/startup"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

const appName = "yuzu-catalog"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are the flags shared by every command, plus the streams and
// filesystem the commands work against.
type Globals struct {
	DataDir string `help:"Directory holding config.yaml and library.json." type:"path" env:"YUZU_CATALOG_DATA"`

	FS     afero.Fs  `kong:"-"`
	Stdin  io.Reader `kong:"-"`
	Stdout io.Writer `kong:"-"`
}

// CLI is the top-level command structure for yuzu-catalog
type CLI struct {
	Globals

	Version  kong.VersionFlag `help:"Show version." short:"V"`
	Browse   BrowseCmd        `cmd:"" default:"1" help:"Browse the game library (default)."`
	Setup    SetupCmd         `cmd:"" help:"Show the first launch steps again."`
	Dirs     DirsCmd          `cmd:"" help:"Manage the directories scanned for games."`
	Exclude  ExcludeCmd       `cmd:"" help:"Exclude a path from scans."`
	Scan     ScanCmd          `cmd:"" help:"Scan the game directories."`
	List     ListCmd          `cmd:"" help:"Print the game library."`
	Launch   LaunchCmd        `cmd:"" help:"Start a game in the emulator."`
	Favorite FavoriteCmd      `cmd:"" help:"Mark a game as favorite."`
	Contents ContentsCmd      `cmd:"" help:"List the files inside a game's archive."`
}

// app is the state a command runs with
type app struct {
	fs     afero.Fs
	paths  storage.Paths
	config *storage.Config
	feed   *feed.Feed
	in     io.Reader
	out    io.Writer
}

// open resolves the data directory, loads config.yaml and library.json
func (g *Globals) open() (*app, error) {
	fs := g.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	paths := storage.Paths{Base: g.DataDir}
	if g.DataDir == "" {
		var err error
		if paths, err = storage.DefaultPaths(appName); err != nil {
			return nil, err
		}
	}
	if err := paths.EnsureDirectories(fs); err != nil {
		return nil, err
	}
	if err := storage.CreateConfigIfMissing(fs, paths.ConfigPath()); err != nil {
		return nil, err
	}
	config, err := storage.LoadConfig(fs, paths.ConfigPath())
	if err != nil {
		return nil, err
	}

	f := feed.New(fs, paths.LibraryPath(), config, catalog.New())
	if err := f.Load(); err != nil {
		return nil, err
	}

	a := &app{fs: fs, paths: paths, config: config, feed: f, in: g.Stdin, out: g.Stdout}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	return a, nil
}

// firstLaunch runs the disclaimer and directory prompt if they are due
func (a *app) firstLaunch(force bool) error {
	if force {
		a.config.FirstLaunch = true
	}
	h := &startup.Handler{
		FS:         a.fs,
		ConfigPath: a.paths.ConfigPath(),
		Config:     a.config,
		Prompt:     startup.NewConsole(a.in, a.out),
		AddDirectory: func(path string, recursive bool) error {
			return a.addDirectory(path, recursive)
		},
	}
	_, err := h.Run()
	return err
}

func (a *app) addDirectory(path string, recursive bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return a.feed.Update(func(lib *storage.Library) error {
		lib.AddScanDirectory(abs, recursive)
		return nil
	})
}

// writeList prints the current catalog as a table
func (a *app) writeList() error {
	cache := a.feed.Cache()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPUBLISHER\tREGIONS\t")
	for i := 0; i < cache.Count(); i++ {
		entry, err := cache.EntryAt(i)
		if err != nil {
			break
		}
		title := entry.DisplayTitle()
		if !entry.Launchable() {
			title += " " + browser.ArchiveTag
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", entry.ID, title, entry.Caption, strings.ToUpper(strings.Join(entry.Regions, ",")))
	}
	return tw.Flush()
}

// BrowseCmd opens the interactive game list
type BrowseCmd struct {
	NoTUI bool `help:"Print the library instead of opening the browser." default:"false"`
}

// Run executes the browse command.
func (c *BrowseCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	if c.NoTUI || !isTerminal(a.out) {
		return a.writeList()
	}

	if err := a.firstLaunch(false); err != nil {
		return fmt.Errorf("browse: %w", err)
	}

	// The browser owns the terminal, so log to a file
	if logFile, err := a.fs.OpenFile(a.paths.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		log.SetOutput(logFile)
		defer func() {
			log.SetOutput(os.Stderr)
			logFile.Close()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go a.feed.Watch(ctx, a.config.Watch.Interval)

	m := browser.New(a.feed.Cache(), a.feed, launcher.New(a.config.Launch))
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("browse: %w", err)
	}

	// Keep the sort and filter for next time
	view := a.feed.View()
	a.config.Library.SortBy = view.SortBy
	a.config.Library.FavoritesOnly = view.FavoritesOnly
	if err := storage.SaveConfig(a.fs, a.paths.ConfigPath(), a.config); err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	return nil
}

// SetupCmd shows the disclaimer and directory prompt again
type SetupCmd struct{}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := a.firstLaunch(true); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return nil
}

// DirsCmd groups the scan directory commands
type DirsCmd struct {
	Add    DirsAddCmd    `cmd:"" help:"Add a directory to scan."`
	Remove DirsRemoveCmd `cmd:"" help:"Stop scanning a directory."`
	List   DirsListCmd   `cmd:"" help:"List scanned directories."`
}

// DirsAddCmd adds a scan directory
type DirsAddCmd struct {
	Path      string `arg:"" help:"Directory to scan." type:"path"`
	Recursive bool   `help:"Scan subdirectories too." default:"true" negatable:""`
}

// Run executes the dirs add command.
func (c *DirsAddCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("dirs add: %w", err)
	}
	if err := a.addDirectory(c.Path, c.Recursive); err != nil {
		return fmt.Errorf("dirs add: %w", err)
	}
	return nil
}

// DirsRemoveCmd removes a scan directory
type DirsRemoveCmd struct {
	Path string `arg:"" help:"Directory to stop scanning." type:"path"`
}

// Run executes the dirs remove command.
func (c *DirsRemoveCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("dirs remove: %w", err)
	}
	err = a.feed.Update(func(lib *storage.Library) error {
		if !lib.RemoveScanDirectory(c.Path) {
			return fmt.Errorf("%s is not a scan directory", c.Path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("dirs remove: %w", err)
	}
	return nil
}

// DirsListCmd prints the scan directories
type DirsListCmd struct{}

// Run executes the dirs list command.
func (c *DirsListCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("dirs list: %w", err)
	}
	for _, dir := range a.feed.ScanDirectories() {
		if dir.Recursive {
			fmt.Fprintf(a.out, "%s (recursive)\n", dir.Path)
		} else {
			fmt.Fprintln(a.out, dir.Path)
		}
	}
	return nil
}

// ExcludeCmd excludes a file or directory from scans
type ExcludeCmd struct {
	Path   string `arg:"" help:"File or directory to skip." type:"path"`
	Remove bool   `help:"Stop excluding the path." default:"false"`
}

// Run executes the exclude command.
func (c *ExcludeCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("exclude: %w", err)
	}
	err = a.feed.Update(func(lib *storage.Library) error {
		if c.Remove {
			lib.RemoveExcludedPath(c.Path)
		} else {
			lib.AddExcludedPath(c.Path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("exclude: %w", err)
	}
	return nil
}

// ScanCmd scans the game directories
type ScanCmd struct {
	All bool `help:"Rehash every file and mark vanished games missing." default:"false"`
}

// Run executes the scan command.
func (c *ScanCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var onProgress func(scanner.Progress)
	if isTerminal(a.out) {
		onProgress = func(p scanner.Progress) {
			fmt.Fprintf(a.out, "\r%s", p.StatusText)
		}
	}

	result, err := a.feed.Scan(ctx, c.All, onProgress)
	if onProgress != nil {
		fmt.Fprintln(a.out)
	}
	for _, scanErr := range result.Errors {
		fmt.Fprintf(a.out, "warning: %v\n", scanErr)
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	fmt.Fprintf(a.out, "%d new, %d updated, %d missing\n", result.NewGames, result.Updated, result.Missing)
	return nil
}

// ListCmd prints the library
type ListCmd struct {
	Sort      string `help:"Sort order: title, lastPlayed, playTime or added."`
	Favorites bool   `help:"Only list favorites." default:"false"`
	Search    string `help:"Only list titles containing this text."`
}

// Run executes the list command.
func (c *ListCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	view := a.feed.View()
	if c.Sort != "" {
		if !validSort(c.Sort) {
			return fmt.Errorf("list: unknown sort order %q", c.Sort)
		}
		view.SortBy = c.Sort
	}
	// The browser's saved filter does not apply here
	view.FavoritesOnly = c.Favorites
	view.Search = c.Search
	a.feed.SetView(view)

	return a.writeList()
}

func validSort(sortBy string) bool {
	for _, s := range storage.SortOrders {
		if s == sortBy {
			return true
		}
	}
	return false
}

// LaunchCmd starts a game by ID
type LaunchCmd struct {
	ID int64 `arg:"" help:"Game ID, as shown by list."`
}

// Run executes the launch command.
func (c *LaunchCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	game, ok := a.feed.Game(c.ID)
	if !ok {
		return fmt.Errorf("launch: %w: %d", feed.ErrUnknownGame, c.ID)
	}
	title := game.DisplayName
	if title == "" {
		title = game.Name
	}

	cmd := launcher.New(a.config.Launch)
	cmd.Stdout = a.out
	cmd.Stderr = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := cmd.Launch(ctx, game.File, title); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	if err := a.feed.RecordPlay(c.ID, time.Since(start)); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	return nil
}

// FavoriteCmd marks or unmarks a favorite
type FavoriteCmd struct {
	ID  int64 `arg:"" help:"Game ID, as shown by list."`
	Off bool  `help:"Remove the game from favorites." default:"false"`
}

// Run executes the favorite command.
func (c *FavoriteCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("favorite: %w", err)
	}
	err = a.feed.Update(func(lib *storage.Library) error {
		game := lib.GetGameByID(c.ID)
		if game == nil {
			return fmt.Errorf("%w: %d", feed.ErrUnknownGame, c.ID)
		}
		game.Favorite = !c.Off
		return nil
	})
	if err != nil {
		return fmt.Errorf("favorite: %w", err)
	}
	return nil
}

// ContentsCmd lists archive members
type ContentsCmd struct {
	ID int64 `arg:"" help:"Game ID, as shown by list."`
}

// Run executes the contents command.
func (c *ContentsCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return fmt.Errorf("contents: %w", err)
	}
	members, err := a.feed.Members(c.ID)
	if err != nil {
		return fmt.Errorf("contents: %w", err)
	}
	for _, name := range members {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name(appName),
		kong.Description("Index game dumps and start them in an emulator."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
