// Package feed keeps the catalog cache in step with the game library: it
// owns the in-memory library, persists changes, runs scans, and notices
// when library.json is rewritten by another process.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/archive"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/catalog"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/gamedb"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/scanner"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

// ErrScanInProgress is returned when a scan is requested while one is running
var ErrScanInProgress = errors.New("scan already in progress")

// ErrUnknownGame is returned for IDs not present in the library
var ErrUnknownGame = errors.New("unknown game")

// fileStamp identifies one version of library.json on disk
type fileStamp struct {
	exists  bool
	size    int64
	modTime int64
}

func stampOf(fs afero.Fs, path string) fileStamp {
	info, err := fs.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, size: info.Size(), modTime: info.ModTime().UnixNano()}
}

// Feed publishes the library into a catalog.Cache. Cache observers are
// notified while the feed's lock is held and must not call back into the
// feed synchronously.
type Feed struct {
	fs     afero.Fs
	path   string
	config *storage.Config
	cache  *catalog.Cache

	checksums *scanner.ChecksumCache

	mu             sync.Mutex
	library        *storage.Library
	view           storage.LibraryView
	stamp          fileStamp
	scanning       bool
	metadata       *gamedb.DB
	metadataLoaded bool
}

// New creates a feed for the library at libraryPath. Nothing is read until
// Load is called.
func New(fs afero.Fs, libraryPath string, config *storage.Config, cache *catalog.Cache) *Feed {
	checksums, err := scanner.NewChecksumCache(scanner.DefaultChecksumCacheSize)
	if err != nil {
		log.Printf("[feed] checksum cache disabled: %v", err)
	}

	return &Feed{
		fs:        fs,
		path:      libraryPath,
		config:    config,
		cache:     cache,
		checksums: checksums,
		library:   storage.DefaultLibrary(),
		view:      config.Library,
	}
}

// Cache returns the cache the feed installs into
func (f *Feed) Cache() *catalog.Cache {
	return f.cache
}

// Load reads library.json and installs a snapshot of it. On failure the
// cache is left Invalidated.
func (f *Feed) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stamp = stampOf(f.fs, f.path)
	lib, err := storage.LoadLibrary(f.fs, f.path)
	if err != nil {
		f.cache.Invalidate()
		return fmt.Errorf("failed to load library: %w", err)
	}

	f.library = lib
	f.installLocked()
	return nil
}

// Refresh installs a new snapshot of the in-memory library
func (f *Feed) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installLocked()
}

// View returns the current filter and sort
func (f *Feed) View() storage.LibraryView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

// SetView changes the filter and sort and installs the resulting snapshot
func (f *Feed) SetView(view storage.LibraryView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = view
	f.installLocked()
}

// Update runs fn against the library, then saves it and installs a new
// snapshot. If fn fails nothing is saved.
func (f *Feed) Update(fn func(lib *storage.Library) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := fn(f.library); err != nil {
		return err
	}

	err := f.saveLocked()
	f.installLocked()
	return err
}

// Game returns a copy of the library entry with the given stable ID
func (f *Feed) Game(id int64) (storage.GameEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	game := f.library.GetGameByID(id)
	if game == nil {
		return storage.GameEntry{}, false
	}
	copied := *game
	copied.Regions = append([]string(nil), game.Regions...)
	return copied, true
}

// ScanDirectories returns a copy of the configured scan directories
func (f *Feed) ScanDirectories() []storage.ScanDirectory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.ScanDirectory(nil), f.library.ScanDirectories...)
}

// RecordPlay adds a play session to the game with the given ID
func (f *Feed) RecordPlay(id int64, played time.Duration) error {
	return f.Update(func(lib *storage.Library) error {
		game := lib.GetGameByID(id)
		if game == nil {
			return fmt.Errorf("%w: %d", ErrUnknownGame, id)
		}
		lib.UpdatePlayTime(game.CRC32, int64(played/time.Second))
		return nil
	})
}

// Members lists the files inside the archive holding the game with the
// given ID. A plain game file lists as itself.
func (f *Feed) Members(id int64) ([]string, error) {
	game, ok := f.Game(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGame, id)
	}
	return archive.ContentsFile(f.fs, game.File)
}

// IsScanning returns true if a scan is in progress
func (f *Feed) IsScanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

// Scan runs the scanner over the library's scan directories and merges
// what it finds. onProgress, if set, is called on the calling goroutine.
// Cancelling ctx stops the scan without changing the library.
func (f *Feed) Scan(ctx context.Context, rescanAll bool, onProgress func(scanner.Progress)) (scanner.Result, error) {
	f.mu.Lock()
	if f.scanning {
		f.mu.Unlock()
		return scanner.Result{}, ErrScanInProgress
	}
	f.scanning = true

	opts := scanner.Options{
		Directories: append([]storage.ScanDirectory(nil), f.library.ScanDirectories...),
		Excluded:    append([]string(nil), f.library.ExcludedPaths...),
		Existing:    copyGames(f.library.Games),
		RescanAll:   rescanAll,
		Extensions:  f.config.Scan.Extensions,
		Workers:     f.config.Scan.Workers,
		Checksums:   f.checksums,
	}
	metaErr := f.loadMetadataLocked()
	opts.Metadata = f.metadata
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.scanning = false
		f.mu.Unlock()
	}()

	s := scanner.New(f.fs, opts)
	go s.Run()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-stop:
		}
	}()

	for p := range s.Progress() {
		if onProgress != nil {
			onProgress(p)
		}
	}
	result := <-s.Done()

	if metaErr != nil {
		// Non-fatal: continue without metadata
		result.Errors = append([]error{metaErr}, result.Errors...)
	}
	if result.Cancelled {
		return result, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.mergeLocked(s.Games(), opts.Existing)
	err := f.saveLocked()
	f.installLocked()

	log.Printf("[feed] scan complete: %d new, %d updated, %d missing, %d errors",
		result.NewGames, result.Updated, result.Missing, len(result.Errors))
	return result, err
}

// Watch polls library.json every interval until ctx is done. An interval
// of 0 disables watching.
func (f *Feed) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.Poll(); err != nil {
				log.Printf("[feed] %v", err)
			}
		}
	}
}

// Poll reloads library.json if it changed since the feed last read or
// wrote it. The cache is invalidated before the reload, and stays
// Invalidated if the new content cannot be read. It reports whether a
// change was seen.
func (f *Feed) Poll() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stamp := stampOf(f.fs, f.path)
	if stamp == f.stamp {
		return false, nil
	}
	f.stamp = stamp

	f.cache.Invalidate()

	lib, err := storage.LoadLibrary(f.fs, f.path)
	if err != nil {
		return true, fmt.Errorf("failed to reload library: %w", err)
	}

	f.library = lib
	f.installLocked()
	return true, nil
}

// BuildSnapshot converts library entries, in order, into a catalog snapshot
func BuildSnapshot(games []*storage.GameEntry) *catalog.Snapshot {
	entries := make([]catalog.Entry, 0, len(games))
	for _, g := range games {
		title := g.DisplayName
		if title == "" {
			title = g.Name
		}
		entries = append(entries, catalog.Entry{
			ID:          g.ID,
			Title:       title,
			Caption:     g.Company,
			Locator:     g.File,
			Description: g.Description,
			Regions:     g.Regions,
		})
	}
	return catalog.NewSnapshot(entries)
}

func (f *Feed) installLocked() {
	f.cache.Install(BuildSnapshot(f.library.GamesSorted(f.view)))
}

func (f *Feed) saveLocked() error {
	if err := storage.SaveLibrary(f.fs, f.path, f.library); err != nil {
		log.Printf("[feed] failed to save library: %v", err)
		return err
	}
	// Our own write is not an external change
	f.stamp = stampOf(f.fs, f.path)
	return nil
}

// mergeLocked adds scan results to the library. User data changed while
// the scan ran wins over the scan's copy, and games removed while it ran
// stay removed. before is the library as the scan started.
func (f *Feed) mergeLocked(games, before map[string]*storage.GameEntry) {
	for crc, game := range games {
		current := f.library.GetGame(crc)
		if current == nil {
			if before[crc] != nil {
				continue
			}
			f.library.AddGame(game)
			continue
		}
		game.ID = current.ID
		game.Favorite = current.Favorite
		game.PlayTimeSeconds = current.PlayTimeSeconds
		game.LastPlayed = current.LastPlayed
		f.library.AddGame(game)
	}
}

// loadMetadataLocked loads the configured metadata database once
func (f *Feed) loadMetadataLocked() error {
	if f.metadataLoaded || f.config.Scan.MetadataDB == "" {
		return nil
	}
	f.metadataLoaded = true

	db, err := gamedb.Load(f.fs, f.config.Scan.MetadataDB)
	if err != nil && db.Len() == 0 {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	if err != nil {
		log.Printf("[feed] metadata partially loaded (%d records): %v", db.Len(), err)
	}
	f.metadata = db
	return nil
}

func copyGames(games map[string]*storage.GameEntry) map[string]*storage.GameEntry {
	out := make(map[string]*storage.GameEntry, len(games))
	for crc, g := range games {
		copied := *g
		copied.Regions = append([]string(nil), g.Regions...)
		out[crc] = &copied
	}
	return out
}
