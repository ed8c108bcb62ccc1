// Package gamedb reads RDB files, the MessagePack game metadata databases
// published by libretro, and indexes their records by CRC32.
package gamedb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// Record is one game in the database
type Record struct {
	Name         string // Full No-Intro style name, e.g. "Super Game (USA, Europe)"
	Description  string
	Genre        string
	Developer    string
	Publisher    string
	Franchise    string
	ROMName      string
	Serial       string
	ReleaseMonth uint
	ReleaseYear  uint
	Size         uint64
	CRC32        uint32
	MD5          string
}

// Company returns the publisher, falling back to the developer
func (r *Record) Company() string {
	if r.Publisher != "" {
		return r.Publisher
	}
	return r.Developer
}

// DB is a parsed database
type DB struct {
	records []Record
	byCRC32 map[uint32]*Record
}

// headerLen is the fixed RDB file header ("RARCHDB\0" plus metadata offset)
const headerLen = 0x10

// ErrTruncated is returned when a record runs past the end of the data
var ErrTruncated = errors.New("rdb data truncated")

// Load reads and parses the database at path
func Load(fs afero.Fs, path string) (*DB, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read RDB file: %w", err)
	}
	return Parse(data)
}

// Parse decodes RDB content. Records decoded before a malformed one are kept
// and the error reports where decoding stopped.
func Parse(data []byte) (*DB, error) {
	records, err := parseRecords(data)
	return New(records), err
}

// New indexes records. Records without a CRC32 are kept but not findable.
func New(records []Record) *DB {
	db := &DB{
		records: records,
		byCRC32: make(map[uint32]*Record, len(records)),
	}
	for i := range db.records {
		if db.records[i].CRC32 != 0 {
			db.byCRC32[db.records[i].CRC32] = &db.records[i]
		}
	}
	return db
}

// FindByCRC32 looks up a game by its CRC32 checksum. A nil DB finds nothing.
func (db *DB) FindByCRC32(crc uint32) *Record {
	if db == nil {
		return nil
	}
	return db.byCRC32[crc]
}

// Len returns the number of records
func (db *DB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.records)
}

// DisplayName strips region/version groups from a No-Intro name
func DisplayName(name string) string {
	if idx := strings.Index(name, " ("); idx > 0 {
		return strings.TrimSpace(name[:idx])
	}
	return name
}

var regionCodes = map[string]string{
	"usa":       "us",
	"us":        "us",
	"europe":    "eu",
	"eu":        "eu",
	"japan":     "jp",
	"jp":        "jp",
	"world":     "world",
	"asia":      "as",
	"korea":     "kr",
	"china":     "cn",
	"australia": "au",
	"germany":   "de",
	"france":    "fr",
	"spain":     "es",
	"italy":     "it",
}

// Regions returns the region codes named in a No-Intro title's
// parenthesised groups, in order of appearance and without duplicates.
func Regions(name string) []string {
	var regions []string
	seen := make(map[string]bool)

	rest := name
	for {
		open := strings.Index(rest, "(")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open:], ")")
		if end < 0 {
			break
		}
		group := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		for _, part := range strings.Split(group, ",") {
			code, ok := regionCodes[strings.ToLower(strings.TrimSpace(part))]
			if ok && !seen[code] {
				seen[code] = true
				regions = append(regions, code)
			}
		}
	}
	return regions
}

func parseRecords(data []byte) ([]Record, error) {
	if len(data) <= headerLen {
		return nil, nil
	}

	d := &decoder{data: data, pos: headerLen}
	var records []Record

	for !d.done() {
		if d.peek() == mpNil {
			break
		}
		n, err := d.mapLen()
		if err != nil {
			return records, err
		}

		var r Record
		for i := 0; i < n; i++ {
			key, err := d.value()
			if err != nil {
				return records, err
			}
			val, err := d.value()
			if err != nil {
				return records, err
			}
			setField(&r, string(key.raw), val)
		}
		if r.Name != "" || r.CRC32 != 0 {
			records = append(records, r)
		}
	}
	return records, nil
}

// setField stores a decoded value in the record
func setField(r *Record, key string, v value) {
	switch key {
	case "name":
		r.Name = string(v.raw)
	case "description":
		r.Description = string(v.raw)
	case "genre":
		r.Genre = string(v.raw)
	case "developer":
		r.Developer = string(v.raw)
	case "publisher":
		r.Publisher = string(v.raw)
	case "franchise":
		r.Franchise = string(v.raw)
	case "serial":
		r.Serial = string(v.raw)
	case "rom_name":
		r.ROMName = string(v.raw)
	case "size":
		r.Size = v.uint()
	case "releasemonth":
		r.ReleaseMonth = uint(v.uint())
	case "releaseyear":
		r.ReleaseYear = uint(v.uint())
	case "crc":
		r.CRC32 = uint32(v.uint())
	case "md5":
		// Stored as 16 raw bytes
		r.MD5 = fmt.Sprintf("%x", v.raw)
	}
}
