// Package catalog holds the game catalog view cache: an immutable snapshot of
// the indexed library swapped in atomically and read by position from the
// presentation layer.
package catalog

import (
	"regexp"
	"strings"
)

// NoID is returned by StableID when no entry is addressable
const NoID int64 = 0

// archiveSuffixes are locator extensions that cannot be handed to the emulator directly
var archiveSuffixes = []string{".rar", ".zip", ".7z", ".torrent", ".tar", ".gz"}

var titleWhitespace = regexp.MustCompile(`[\t\n\r]+`)

// Entry is one indexed title
type Entry struct {
	ID          int64    // Durable across snapshots, never reused
	Title       string   // Raw title as indexed
	Caption     string   // Company / publisher line
	Locator     string   // Path to the game file or archive
	Description string
	Regions     []string // Region codes ("us", "eu", "jp", ...)
}

// DisplayTitle returns the title with tab/newline/carriage-return runs
// collapsed to single spaces.
func (e Entry) DisplayTitle() string {
	return titleWhitespace.ReplaceAllString(e.Title, " ")
}

// Launchable reports whether the entry can be launched directly
func (e Entry) Launchable() bool {
	return IsLaunchable(e)
}

// IsLaunchable returns false when the entry's locator ends in a known archive
// extension (case-insensitive) and true otherwise. Only the name is checked,
// the file itself is never opened.
func IsLaunchable(e Entry) bool {
	lower := strings.ToLower(e.Locator)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}

// clone returns a copy that shares no memory with e
func (e Entry) clone() Entry {
	if e.Regions != nil {
		e.Regions = append([]string(nil), e.Regions...)
	}
	return e
}
