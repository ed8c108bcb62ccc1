package storage

import (
	"fmt"
	"sort"
)

// SanitizeLibraryEntries silently corrects invalid game entry fields.
// This runs on load so invalid values never reach the catalog.
func SanitizeLibraryEntries(lib *Library) {
	// A null entry carries nothing to repair
	for k, game := range lib.Games {
		if game == nil {
			delete(lib.Games, k)
		}
	}

	// Visit in key order so ID repairs are deterministic
	keys := make([]string, 0, len(lib.Games))
	for k := range lib.Games {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var maxID int64
	for _, k := range keys {
		if id := lib.Games[k].ID; id > maxID {
			maxID = id
		}
	}
	if lib.NextID <= maxID {
		lib.NextID = maxID + 1
	}

	seen := make(map[int64]bool, len(keys))
	for _, k := range keys {
		game := lib.Games[k]
		if game.CRC32 != k {
			game.CRC32 = k
		}
		if game.PlayTimeSeconds < 0 {
			game.PlayTimeSeconds = 0
		}
		if game.LastPlayed < 0 {
			game.LastPlayed = 0
		}
		if game.Added < 0 {
			game.Added = 0
		}

		// IDs must be positive and unique
		if game.ID <= 0 || seen[game.ID] {
			game.ID = lib.NextID
			lib.NextID++
		}
		seen[game.ID] = true
	}
}

// ValidateLibrary checks library-level fields against valid ranges and returns
// human-readable error descriptions. An empty slice means the library is valid.
func ValidateLibrary(lib *Library) []string {
	var errors []string

	if lib.Version != 1 {
		errors = append(errors, fmt.Sprintf("version: %d (valid: 1)", lib.Version))
	}
	if lib.NextID < 1 {
		errors = append(errors, fmt.Sprintf("nextId: %d (valid: >= 1)", lib.NextID))
	}

	return errors
}

// CorrectLibrary resets any invalid library-level fields to their defaults.
func CorrectLibrary(lib *Library) *Library {
	if lib.Version != 1 {
		lib.Version = 1
	}
	if lib.NextID < 1 {
		lib.NextID = 1
	}
	return lib
}
