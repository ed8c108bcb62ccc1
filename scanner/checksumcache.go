package scanner

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultChecksumCacheSize bounds how many file checksums are remembered
const DefaultChecksumCacheSize = 4096

type checksumKey struct {
	path    string
	size    int64
	modTime int64
}

type checksum struct {
	crc    uint32
	member string
}

// ChecksumCache remembers file checksums between scans so unchanged files
// are not read again. A file is considered unchanged while its path, size
// and modification time are. Safe for concurrent use.
type ChecksumCache struct {
	entries *lru.Cache[checksumKey, checksum]
}

// NewChecksumCache creates a cache holding up to size checksums
func NewChecksumCache(size int) (*ChecksumCache, error) {
	entries, err := lru.New[checksumKey, checksum](size)
	if err != nil {
		return nil, err
	}
	return &ChecksumCache{entries: entries}, nil
}

func keyFor(path string, info os.FileInfo) checksumKey {
	return checksumKey{
		path:    path,
		size:    info.Size(),
		modTime: info.ModTime().UnixNano(),
	}
}

// Get returns the remembered checksum for path if info still matches
func (c *ChecksumCache) Get(path string, info os.FileInfo) (uint32, string, bool) {
	if c == nil {
		return 0, "", false
	}
	v, ok := c.entries.Get(keyFor(path, info))
	return v.crc, v.member, ok
}

// Add remembers the checksum of path as of info
func (c *ChecksumCache) Add(path string, info os.FileInfo, crc uint32, member string) {
	if c == nil {
		return
	}
	c.entries.Add(keyFor(path, info), checksum{crc: crc, member: member})
}

// Len returns the number of remembered checksums
func (c *ChecksumCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
