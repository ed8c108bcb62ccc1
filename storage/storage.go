// Package storage persists the game library (library.json) and the
// application configuration (config.yaml).
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

const (
	configFile  = "config.yaml"
	libraryFile = "library.json"
	logFile     = "catalog.log"
	metadataDir = "metadata"
)

// Paths locates the application's files under a base directory
type Paths struct {
	Base string
}

// DefaultPaths returns the per-user data location for appName:
// - macOS: ~/Library/Application Support/<appName>
// - Linux: $XDG_DATA_HOME/<appName> or ~/.local/share/<appName>
// - Windows: %APPDATA%/<appName>
func DefaultPaths(appName string) (Paths, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return Paths{}, fmt.Errorf("APPDATA environment variable not set")
		}
		baseDir = filepath.Join(appData, appName)
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome != "" {
			baseDir = filepath.Join(dataHome, appName)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return Paths{}, fmt.Errorf("failed to get home directory: %w", err)
			}
			baseDir = filepath.Join(home, ".local", "share", appName)
		}
	}

	return Paths{Base: baseDir}, nil
}

// ConfigPath returns the full path to config.yaml
func (p Paths) ConfigPath() string {
	return filepath.Join(p.Base, configFile)
}

// LibraryPath returns the full path to library.json
func (p Paths) LibraryPath() string {
	return filepath.Join(p.Base, libraryFile)
}

// LogPath returns the full path to the log file
func (p Paths) LogPath() string {
	return filepath.Join(p.Base, logFile)
}

// MetadataDir returns the directory holding metadata databases
func (p Paths) MetadataDir() string {
	return filepath.Join(p.Base, metadataDir)
}

// EnsureDirectories creates all necessary directories for the application
func (p Paths) EnsureDirectories(fs afero.Fs) error {
	for _, dir := range []string{p.Base, p.MetadataDir()} {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AtomicWriteFile writes data to path through a temporary file and a
// rename, so the target is never observed partially written.
func AtomicWriteFile(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + ".tmp"
	if err := afero.WriteFile(fs, tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := fs.Rename(tempFile, path); err != nil {
		fs.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// AtomicWriteJSON marshals data with indentation and writes it atomically
func AtomicWriteJSON(fs afero.Fs, path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return AtomicWriteFile(fs, path, jsonData)
}

// ReadJSON reads and unmarshals a JSON file
func ReadJSON(fs afero.Fs, path string, data interface{}) error {
	jsonData, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(jsonData, data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}
