package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from path.
// If the file doesn't exist, it returns default configuration.
// Fields absent from the file keep their defaults; unknown fields and
// malformed YAML are errors. Out-of-range values are reset to defaults.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	config := DefaultConfig()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if len(data) == 0 {
		return config, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		// Comment-only files decode to EOF
		if errors.Is(err, io.EOF) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if problems := ValidateConfig(config); len(problems) > 0 {
		log.Printf("[storage] correcting config: %s", strings.Join(problems, "; "))
		CorrectConfig(config)
	}

	return config, nil
}

// SaveConfig saves the configuration to path atomically
func SaveConfig(fs afero.Fs, path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return AtomicWriteFile(fs, path, data)
}

// CreateConfigIfMissing writes a default config if none exists
func CreateConfigIfMissing(fs afero.Fs, path string) error {
	if _, err := fs.Stat(path); errors.Is(err, os.ErrNotExist) {
		return SaveConfig(fs, path, DefaultConfig())
	}
	return nil
}
