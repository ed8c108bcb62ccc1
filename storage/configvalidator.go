package storage

import (
	"fmt"
	"strings"
	"time"
)

const (
	minWorkers       = 1
	maxWorkers       = 32
	minWatchInterval = 100 * time.Millisecond
)

func validSortOrder(s string) bool {
	for _, o := range SortOrders {
		if s == o {
			return true
		}
	}
	return false
}

func validExtensions(exts []string) bool {
	if len(exts) == 0 {
		return false
	}
	for _, e := range exts {
		if len(e) < 2 || !strings.HasPrefix(e, ".") {
			return false
		}
	}
	return true
}

func validInterval(d time.Duration) bool {
	return d == 0 || d >= minWatchInterval
}

// ValidateConfig checks all config fields against valid ranges and returns
// human-readable error descriptions. An empty slice means the config is valid.
func ValidateConfig(config *Config) []string {
	var errors []string

	if config.Version != 1 {
		errors = append(errors, fmt.Sprintf("version: %d (valid: 1)", config.Version))
	}

	if !validSortOrder(config.Library.SortBy) {
		errors = append(errors, fmt.Sprintf("library.sort_by: %q (valid: %v)", config.Library.SortBy, SortOrders))
	}

	if !validExtensions(config.Scan.Extensions) {
		errors = append(errors, fmt.Sprintf("scan.extensions: %v (valid: non-empty list of \".ext\")", config.Scan.Extensions))
	}

	if config.Scan.Workers < minWorkers || config.Scan.Workers > maxWorkers {
		errors = append(errors, fmt.Sprintf("scan.workers: %d (valid: %d-%d)", config.Scan.Workers, minWorkers, maxWorkers))
	}

	if !validInterval(config.Watch.Interval) {
		errors = append(errors, fmt.Sprintf("watch.interval: %s (valid: 0 or >= %s)", config.Watch.Interval, minWatchInterval))
	}

	return errors
}

// CorrectConfig resets any invalid fields to their defaults from DefaultConfig().
// Valid fields are preserved.
func CorrectConfig(config *Config) *Config {
	defaults := DefaultConfig()

	if config.Version != 1 {
		config.Version = defaults.Version
	}
	if !validSortOrder(config.Library.SortBy) {
		config.Library.SortBy = defaults.Library.SortBy
	}
	if !validExtensions(config.Scan.Extensions) {
		config.Scan.Extensions = defaults.Scan.Extensions
	}
	if config.Scan.Workers < minWorkers || config.Scan.Workers > maxWorkers {
		config.Scan.Workers = defaults.Scan.Workers
	}
	if !validInterval(config.Watch.Interval) {
		config.Watch.Interval = defaults.Watch.Interval
	}

	return config
}
