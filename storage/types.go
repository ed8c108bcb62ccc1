package storage

import "time"

// Sort orders understood by Library.GamesSorted
const (
	SortTitle      = "title"
	SortLastPlayed = "lastPlayed"
	SortPlayTime   = "playTime"
	SortAdded      = "added"
)

// SortOrders lists the valid sort orders in cycling order
var SortOrders = []string{SortTitle, SortLastPlayed, SortPlayTime, SortAdded}

// DefaultExtensions are the game file extensions indexed by default
var DefaultExtensions = []string{".nsp", ".xci", ".nca", ".nro", ".nso"}

// Config represents the application configuration stored in config.yaml
type Config struct {
	Version     int          `yaml:"version"`
	FirstLaunch bool         `yaml:"first_launch"` // Show the disclaimer on next start
	Library     LibraryView  `yaml:"library"`
	Scan        ScanConfig   `yaml:"scan"`
	Watch       WatchConfig  `yaml:"watch"`
	Launch      LaunchConfig `yaml:"launch"`
}

// LibraryView contains library display preferences
type LibraryView struct {
	SortBy        string `yaml:"sort_by"`        // "title", "lastPlayed", "playTime", "added"
	FavoritesOnly bool   `yaml:"favorites_only"` // Show only favorites
	Search        string `yaml:"-"`              // Transient filter text, never persisted
}

// ScanConfig contains library scanning settings
type ScanConfig struct {
	Extensions []string `yaml:"extensions"`  // Game file extensions, archives are always scanned
	Workers    int      `yaml:"workers"`     // Concurrent checksum workers (1-32)
	MetadataDB string   `yaml:"metadata_db"` // Optional RDB file for titles and publishers
}

// WatchConfig controls polling of library.json for external changes
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables watching
}

// LaunchConfig describes how to start the emulator. Args may contain the
// placeholders {path} and {title}.
type LaunchConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Library represents the game library stored in library.json
type Library struct {
	Version         int                   `json:"version"`
	NextID          int64                 `json:"nextId"` // Next stable ID to hand out, never decreases
	ScanDirectories []ScanDirectory       `json:"scanDirectories"`
	ExcludedPaths   []string              `json:"excludedPaths"`
	Games           map[string]*GameEntry `json:"games"` // CRC32 hex string -> entry
}

// ScanDirectory represents a directory to scan for games
type ScanDirectory struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// GameEntry represents a single game in the library
type GameEntry struct {
	ID              int64    `json:"id"`     // Stable identifier, survives rescans and moves
	CRC32           string   `json:"crc32"`  // Checksum of the game file (or first game in an archive)
	File            string   `json:"file"`   // Path to game file or archive on disk
	Member          string   `json:"member"` // Game file name, differs from File for archives
	Name            string   `json:"name"`   // Full name from metadata, or file name
	DisplayName     string   `json:"displayName"`
	Company         string   `json:"company,omitempty"`
	Description     string   `json:"description,omitempty"`
	Regions         []string `json:"regions,omitempty"`
	Favorite        bool     `json:"favorite"`
	Missing         bool     `json:"missing"`         // true if file not found on last full scan
	PlayTimeSeconds int64    `json:"playTimeSeconds"` // Total play time
	LastPlayed      int64    `json:"lastPlayed"`      // Unix timestamp
	Added           int64    `json:"added"`           // Unix timestamp when added to library
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		FirstLaunch: true,
		Library: LibraryView{
			SortBy:        SortTitle,
			FavoritesOnly: false,
		},
		Scan: ScanConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
			Workers:    4,
		},
		Watch: WatchConfig{
			Interval: 2 * time.Second,
		},
		Launch: LaunchConfig{
			Command: "yuzu",
			Args:    []string{"-g", "{path}"},
		},
	}
}

// DefaultLibrary returns a new Library with default values
func DefaultLibrary() *Library {
	return &Library{
		Version:         1,
		NextID:          1,
		ScanDirectories: []ScanDirectory{},
		ExcludedPaths:   []string{},
		Games:           make(map[string]*GameEntry),
	}
}
