// Package scanner finds game files in the library's scan directories,
// checksums them and turns them into library entries.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/archive"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/gamedb"
	"github.com/yuzu-emu-archive/yuzu-2-electric-boogaloo/storage"
)

// Phase represents the current scanning phase
type Phase int

const (
	PhaseDiscovery Phase = iota
	PhaseHashing
	PhaseComplete
)

// Progress represents progress updates from the scanner
type Progress struct {
	Phase      Phase
	Progress   float64 // 0.0 to 1.0
	FilesFound int
	FilesDone  int
	StatusText string
}

// Result represents the final scan result
type Result struct {
	NewGames  int
	Updated   int
	Missing   int
	Errors    []error
	Cancelled bool
}

// Options configures a scan
type Options struct {
	Directories []storage.ScanDirectory
	Excluded    []string
	Existing    map[string]*storage.GameEntry // Current library entries, keyed by CRC32
	RescanAll   bool                          // Re-hash known files and mark vanished ones missing
	Extensions  []string                      // Game file extensions
	Workers     int
	Metadata    *gamedb.DB     // Optional
	Checksums   *ChecksumCache // Optional
}

// archiveExtensions are always scanned regardless of configured extensions
var archiveExtensions = []string{".zip", ".7z", ".gz", ".tgz", ".tar", ".rar"}

// torrentExtension files are indexed as-is so they show in the catalog
const torrentExtension = ".torrent"

// Scanner handles game scanning in the background
type Scanner struct {
	fs   afero.Fs
	opts Options

	excludedPaths map[string]bool
	knownFiles    map[string]*storage.GameEntry // Existing entries by file path

	// Channels
	cancel   chan struct{}
	progress chan Progress
	done     chan Result

	// Internal state
	mu        sync.Mutex
	games     map[string]*storage.GameEntry
	errors    []error
	cancelled bool
}

// hashed is the outcome of checksumming one discovered file
type hashed struct {
	path   string
	crc    uint32
	member string
	ok     bool
}

// New creates a new scanner instance
func New(fs afero.Fs, opts Options) *Scanner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Existing == nil {
		opts.Existing = map[string]*storage.GameEntry{}
	}

	excluded := make(map[string]bool, len(opts.Excluded))
	for _, p := range opts.Excluded {
		excluded[filepath.Clean(p)] = true
	}

	known := make(map[string]*storage.GameEntry, len(opts.Existing))
	for _, game := range opts.Existing {
		if game.File != "" {
			known[game.File] = game
		}
	}

	return &Scanner{
		fs:            fs,
		opts:          opts,
		excludedPaths: excluded,
		knownFiles:    known,
		cancel:        make(chan struct{}),
		progress:      make(chan Progress, 10),
		done:          make(chan Result, 1),
		games:         make(map[string]*storage.GameEntry),
	}
}

// Progress returns the progress channel
func (s *Scanner) Progress() <-chan Progress {
	return s.progress
}

// Done returns the done channel
func (s *Scanner) Done() <-chan Result {
	return s.done
}

// Cancel signals the scanner to stop
func (s *Scanner) Cancel() {
	s.mu.Lock()
	if !s.cancelled {
		s.cancelled = true
		close(s.cancel)
	}
	s.mu.Unlock()
}

// Games returns the new and changed entries, keyed by CRC32. Entries for
// games that vanished during a full rescan are included with Missing set.
func (s *Scanner) Games() map[string]*storage.GameEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games
}

// Run starts the scanning process. It closes Progress and delivers exactly
// one Result on Done.
func (s *Scanner) Run() {
	defer close(s.done)
	defer close(s.progress)

	s.sendProgress(Progress{
		Phase:      PhaseDiscovery,
		StatusText: "Scanning for games...",
	})

	var files []string
	for _, dir := range s.opts.Directories {
		if s.isCancelled() {
			s.done <- Result{Errors: s.getErrors(), Cancelled: true}
			return
		}

		found, err := s.scanDirectory(dir)
		if err != nil {
			s.addError(err)
			continue
		}
		files = append(files, found...)
	}

	results := s.hashFiles(files)

	if s.isCancelled() {
		s.done <- Result{Errors: s.getErrors(), Cancelled: true}
		return
	}

	result := s.merge(results)
	result.Errors = s.getErrors()

	s.sendProgress(Progress{
		Phase:      PhaseComplete,
		Progress:   1,
		FilesFound: len(files),
		FilesDone:  len(files),
		StatusText: "Scan complete",
	})

	s.done <- result
}

// scanDirectory walks a directory looking for game files
func (s *Scanner) scanDirectory(dir storage.ScanDirectory) ([]string, error) {
	var files []string
	root := filepath.Clean(dir.Path)

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if s.isCancelled() {
			return filepath.SkipAll
		}

		// Skip symlinks
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if s.isPathExcluded(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if path != root && !dir.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if s.isSupported(path) {
			files = append(files, path)
		}
		return nil
	}

	if err := afero.Walk(s.fs, root, walkFn); err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, fmt.Errorf("error scanning %s: %w", dir.Path, err)
	}
	return files, nil
}

// hashFiles checksums files on a bounded worker pool. Results keep the
// order of files so duplicate content resolves the same way every scan.
func (s *Scanner) hashFiles(files []string) []hashed {
	results := make([]hashed, len(files))
	total := len(files)
	var completed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for i, path := range files {
		if s.isCancelled() {
			break
		}

		g.Go(func() error {
			if s.isCancelled() {
				return nil
			}

			results[i] = s.hashFile(path)

			done := int(completed.Add(1))
			s.sendProgress(Progress{
				Phase:      PhaseHashing,
				Progress:   float64(done) / float64(total),
				FilesFound: total,
				FilesDone:  done,
				StatusText: "Reading games...",
			})
			return nil
		})
	}

	g.Wait()
	return results
}

// hashFile computes the checksum of one file, consulting the checksum
// cache first. Files already in the library are skipped unless rescanning.
func (s *Scanner) hashFile(path string) hashed {
	if known := s.knownFiles[path]; known != nil && !known.Missing && !s.opts.RescanAll {
		return hashed{path: path}
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		s.addError(fmt.Errorf("failed to stat %s: %w", path, err))
		return hashed{path: path}
	}

	if crc, member, ok := s.opts.Checksums.Get(path, info); ok {
		return hashed{path: path, crc: crc, member: member, ok: true}
	}

	crc, member, err := archive.ChecksumFile(s.fs, path, s.hashExtensions())
	if err != nil {
		// Archives without games and unknown formats are skipped silently
		if !errors.Is(err, archive.ErrNoGameFile) && !errors.Is(err, archive.ErrUnsupportedFormat) {
			s.addError(fmt.Errorf("failed to read %s: %w", path, err))
		}
		return hashed{path: path}
	}

	s.opts.Checksums.Add(path, info, crc, member)
	return hashed{path: path, crc: crc, member: member, ok: true}
}

// merge turns checksums into library entries. Entries for a CRC already in
// the library keep their ID and user data, wherever the file now lives.
func (s *Scanner) merge(results []hashed) Result {
	var result Result
	seen := make(map[string]bool)

	// Known files skipped during hashing keep their entries
	for _, h := range results {
		if known := s.knownFiles[h.path]; known != nil && !h.ok {
			seen[known.CRC32] = true
		}
	}

	for _, h := range results {
		if !h.ok {
			continue
		}

		crcHex := fmt.Sprintf("%08x", h.crc)
		if seen[crcHex] {
			// Duplicate content, first file wins
			continue
		}
		seen[crcHex] = true

		existing := s.opts.Existing[crcHex]
		entry := s.buildEntry(h, crcHex, existing)

		s.mu.Lock()
		s.games[crcHex] = entry
		s.mu.Unlock()

		if existing == nil {
			result.NewGames++
		} else {
			result.Updated++
		}
	}

	if s.opts.RescanAll {
		for crcHex, game := range s.opts.Existing {
			if seen[crcHex] || game.Missing {
				continue
			}
			missing := *game
			missing.Missing = true

			s.mu.Lock()
			s.games[crcHex] = &missing
			s.mu.Unlock()
			result.Missing++
		}
	}

	return result
}

// buildEntry creates the library entry for a checksummed file
func (s *Scanner) buildEntry(h hashed, crcHex string, existing *storage.GameEntry) *storage.GameEntry {
	var entry *storage.GameEntry

	if existing != nil {
		// Preserve identity and user data, update location
		copied := *existing
		entry = &copied
		entry.Regions = append([]string(nil), existing.Regions...)
		entry.File = h.path
		entry.Member = h.member
		entry.Missing = false
	} else {
		// Name/DisplayName left empty so the metadata lookup can fill them
		entry = &storage.GameEntry{
			CRC32:  crcHex,
			File:   h.path,
			Member: h.member,
			Added:  time.Now().Unix(),
		}
	}

	// Look up metadata, only filling in empty fields
	if game := s.opts.Metadata.FindByCRC32(h.crc); game != nil {
		if entry.Name == "" {
			entry.Name = game.Name
		}
		if entry.DisplayName == "" {
			entry.DisplayName = gamedb.DisplayName(game.Name)
		}
		if entry.Company == "" {
			entry.Company = game.Company()
		}
		if entry.Description == "" {
			entry.Description = game.Description
		}
		if len(entry.Regions) == 0 {
			entry.Regions = gamedb.Regions(game.Name)
		}
	}

	// Fall back to the file name when metadata had nothing
	if entry.Name == "" {
		entry.Name = strings.TrimSuffix(h.member, filepath.Ext(h.member))
	}
	if entry.DisplayName == "" {
		entry.DisplayName = cleanDisplayName(h.member)
	}
	if len(entry.Regions) == 0 {
		entry.Regions = gamedb.Regions(h.member)
	}

	return entry
}

// cleanDisplayName removes file extension and parenthesized metadata
func cleanDisplayName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	if idx := strings.Index(name, " ("); idx > 0 {
		name = strings.TrimSpace(name[:idx])
	}

	return name
}

// hashExtensions are the names checksummed as plain files
func (s *Scanner) hashExtensions() []string {
	return append(append([]string(nil), s.opts.Extensions...), torrentExtension)
}

// isSupported checks if a file name has a scannable extension
func (s *Scanner) isSupported(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, torrentExtension) {
		return true
	}
	for _, a := range archiveExtensions {
		if strings.HasSuffix(lower, a) {
			return true
		}
	}
	for _, e := range s.opts.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

// isPathExcluded checks if a path or one of its parents is excluded
func (s *Scanner) isPathExcluded(path string) bool {
	if s.excludedPaths[path] {
		return true
	}
	for excluded := range s.excludedPaths {
		if strings.HasPrefix(path, excluded+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// isCancelled checks if the scanner was cancelled
func (s *Scanner) isCancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

func (s *Scanner) addError(err error) {
	s.mu.Lock()
	s.errors = append(s.errors, err)
	s.mu.Unlock()
}

// getErrors returns a copy of the errors slice (thread-safe)
func (s *Scanner) getErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]error, len(s.errors))
	copy(errs, s.errors)
	return errs
}

// sendProgress sends a progress update (non-blocking)
func (s *Scanner) sendProgress(p Progress) {
	select {
	case s.progress <- p:
	default:
		// Progress channel full, skip this update
	}
}
