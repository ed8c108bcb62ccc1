package storage

import (
	"errors"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"
)

// LoadLibrary loads the library from path.
// If the file doesn't exist, it returns an empty library.
// If the file is corrupted, it returns an error.
func LoadLibrary(fs afero.Fs, path string) (*Library, error) {
	if _, err := fs.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultLibrary(), nil
	}

	library := &Library{}
	if err := ReadJSON(fs, path, library); err != nil {
		return nil, err
	}

	if library.Games == nil {
		library.Games = make(map[string]*GameEntry)
	}

	library = migrateLibrary(library)

	if problems := ValidateLibrary(library); len(problems) > 0 {
		log.Printf("[storage] correcting library: %s", strings.Join(problems, "; "))
		CorrectLibrary(library)
	}

	// Silently fix invalid game entry fields
	SanitizeLibraryEntries(library)

	return library, nil
}

// SaveLibrary saves the library to path atomically
func SaveLibrary(fs afero.Fs, path string, library *Library) error {
	return AtomicWriteJSON(fs, path, library)
}

// migrateLibrary handles any necessary migrations from older library versions
func migrateLibrary(library *Library) *Library {
	if library.Version == 0 {
		library.Version = 1
	}
	if library.NextID < 1 {
		library.NextID = 1
	}
	return library
}

// AddGame adds or replaces a game entry, keyed by CRC32. An entry without an
// ID is given the next unused one.
func (lib *Library) AddGame(entry *GameEntry) {
	if lib.Games == nil {
		lib.Games = make(map[string]*GameEntry)
	}
	if lib.NextID < 1 {
		lib.NextID = 1
	}
	if entry.ID == 0 {
		entry.ID = lib.NextID
	}
	if entry.ID >= lib.NextID {
		lib.NextID = entry.ID + 1
	}
	lib.Games[entry.CRC32] = entry
}

// GetGame retrieves a game by CRC32
func (lib *Library) GetGame(gameCRC string) *GameEntry {
	if lib.Games == nil {
		return nil
	}
	return lib.Games[gameCRC]
}

// GetGameByID retrieves a game by its stable ID
func (lib *Library) GetGameByID(id int64) *GameEntry {
	for _, game := range lib.Games {
		if game.ID == id {
			return game
		}
	}
	return nil
}

// FindByFile returns the entry stored for a path on disk
func (lib *Library) FindByFile(path string) *GameEntry {
	for _, game := range lib.Games {
		if game.File == path {
			return game
		}
	}
	return nil
}

// RemoveGame removes a game from the library. Its ID is not reused.
func (lib *Library) RemoveGame(gameCRC string) {
	if lib.Games != nil {
		delete(lib.Games, gameCRC)
	}
}

// GameCount returns the number of games in the library
func (lib *Library) GameCount() int {
	return len(lib.Games)
}

// GamesSorted returns the games selected by view in its sort order.
// Search is case-insensitive and matches DisplayName and Name. Missing games
// are left out.
func (lib *Library) GamesSorted(view LibraryView) []*GameEntry {
	if lib.Games == nil {
		return nil
	}

	fold := cases.Fold()
	search := fold.String(view.Search)

	games := make([]*GameEntry, 0, len(lib.Games))
	for _, game := range lib.Games {
		if game.Missing {
			continue
		}
		if view.FavoritesOnly && !game.Favorite {
			continue
		}
		if search != "" &&
			!strings.Contains(fold.String(game.DisplayName), search) &&
			!strings.Contains(fold.String(game.Name), search) {
			continue
		}
		games = append(games, game)
	}

	keys := make(map[*GameEntry]sortKey, len(games))
	for _, game := range games {
		keys[game] = sortKey{
			display: fold.String(game.DisplayName),
			name:    fold.String(game.Name),
		}
	}
	byTitle := func(a, b *GameEntry) bool {
		return compareGamesForSort(a, b, keys[a], keys[b])
	}

	switch view.SortBy {
	case SortLastPlayed:
		sort.Slice(games, func(i, j int) bool {
			// Primary: most recent first
			if games[i].LastPlayed != games[j].LastPlayed {
				return games[i].LastPlayed > games[j].LastPlayed
			}
			return byTitle(games[i], games[j])
		})
	case SortPlayTime:
		sort.Slice(games, func(i, j int) bool {
			// Primary: most played first
			if games[i].PlayTimeSeconds != games[j].PlayTimeSeconds {
				return games[i].PlayTimeSeconds > games[j].PlayTimeSeconds
			}
			return byTitle(games[i], games[j])
		})
	case SortAdded:
		sort.Slice(games, func(i, j int) bool {
			// Primary: newest first
			if games[i].Added != games[j].Added {
				return games[i].Added > games[j].Added
			}
			return byTitle(games[i], games[j])
		})
	default:
		sort.Slice(games, func(i, j int) bool {
			return byTitle(games[i], games[j])
		})
	}

	return games
}

// sortKey holds case-folded names computed once per sort
type sortKey struct {
	display string
	name    string
}

// compareGamesForSort orders by display name, then region list, then full
// name, then CRC32.
func compareGamesForSort(a, b *GameEntry, ka, kb sortKey) bool {
	if ka.display != kb.display {
		return ka.display < kb.display
	}

	ra, rb := strings.Join(a.Regions, ","), strings.Join(b.Regions, ",")
	if ra != rb {
		return ra < rb
	}

	if ka.name != kb.name {
		return ka.name < kb.name
	}

	// Final tiebreaker: CRC32 (unique as the map key)
	return a.CRC32 < b.CRC32
}

// AddScanDirectory adds a directory to scan for games
func (lib *Library) AddScanDirectory(path string, recursive bool) {
	for i, dir := range lib.ScanDirectories {
		if dir.Path == path {
			lib.ScanDirectories[i].Recursive = recursive
			return
		}
	}
	lib.ScanDirectories = append(lib.ScanDirectories, ScanDirectory{
		Path:      path,
		Recursive: recursive,
	})
}

// RemoveScanDirectory removes a directory from the scan list
func (lib *Library) RemoveScanDirectory(path string) bool {
	for i, dir := range lib.ScanDirectories {
		if dir.Path == path {
			lib.ScanDirectories = append(lib.ScanDirectories[:i], lib.ScanDirectories[i+1:]...)
			return true
		}
	}
	return false
}

// AddExcludedPath adds a path to the exclusion list
func (lib *Library) AddExcludedPath(path string) {
	for _, p := range lib.ExcludedPaths {
		if p == path {
			return
		}
	}
	lib.ExcludedPaths = append(lib.ExcludedPaths, path)
}

// RemoveExcludedPath removes a path from the exclusion list
func (lib *Library) RemoveExcludedPath(path string) {
	for i, p := range lib.ExcludedPaths {
		if p == path {
			lib.ExcludedPaths = append(lib.ExcludedPaths[:i], lib.ExcludedPaths[i+1:]...)
			return
		}
	}
}

// IsPathExcluded checks if a path or one of its parents is excluded
func (lib *Library) IsPathExcluded(path string) bool {
	for _, excluded := range lib.ExcludedPaths {
		if path == excluded || strings.HasPrefix(path, excluded+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// UpdatePlayTime adds play time to a game and updates last played
func (lib *Library) UpdatePlayTime(gameCRC string, secondsPlayed int64) {
	if game := lib.GetGame(gameCRC); game != nil {
		game.PlayTimeSeconds += secondsPlayed
		game.LastPlayed = time.Now().Unix()
	}
}
