// Package archive identifies game files on disk, including ones packed in
// compressed archives (ZIP, 7z, gzip, tar, tar.gz, RAR), and computes the
// CRC32 the library keys them by.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Magic bytes for format detection
var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06} // empty zip
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21} // "Rar!"
	magicTar    = []byte("ustar")
)

// tar stores its magic after the first header fields
const tarMagicOffset = 257

// headerSize is how much of a file Detect needs to see
const headerSize = 512

// ErrNoGameFile is returned when an archive holds no file with a game extension
var ErrNoGameFile = errors.New("no game file found in archive")

// ErrUnsupportedFormat is returned for unrecognized file formats
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format is a detected container format
type Format int

const (
	FormatUnknown Format = iota
	FormatRaw
	FormatZIP
	Format7z
	FormatGzip
	FormatTarGz
	FormatTar
	FormatRAR
)

// String returns a short format name
func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatZIP:
		return "zip"
	case Format7z:
		return "7z"
	case FormatGzip:
		return "gzip"
	case FormatTarGz:
		return "tar.gz"
	case FormatTar:
		return "tar"
	case FormatRAR:
		return "rar"
	default:
		return "unknown"
	}
}

// IsArchive reports whether f is a container rather than a game file
func (f Format) IsArchive() bool {
	return f != FormatRaw && f != FormatUnknown
}

// Detect determines the format of a file from its first bytes and its name.
// Magic bytes win over the extension. Files that are not archives are Raw
// when their extension is one of extensions, Unknown otherwise.
func Detect(header []byte, name string, extensions []string) Format {
	lower := strings.ToLower(name)
	tarName := strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")

	switch {
	case bytes.HasPrefix(header, magicZIP), bytes.HasPrefix(header, magicZIPEnd):
		return FormatZIP
	case bytes.HasPrefix(header, magicRAR):
		return FormatRAR
	case bytes.HasPrefix(header, magic7z):
		return Format7z
	case bytes.HasPrefix(header, magicGzip):
		if tarName {
			return FormatTarGz
		}
		return FormatGzip
	case len(header) >= tarMagicOffset+len(magicTar) &&
		bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(magicTar)], magicTar):
		return FormatTar
	}

	// Fall back to extension for archive formats
	if tarName {
		return FormatTarGz
	}
	switch filepath.Ext(lower) {
	case ".zip":
		return FormatZIP
	case ".7z":
		return Format7z
	case ".gz":
		return FormatGzip
	case ".tar":
		return FormatTar
	case ".rar":
		return FormatRAR
	}

	if hasExtension(lower, extensions) {
		return FormatRaw
	}
	return FormatUnknown
}

// Checksum returns the CRC32 (IEEE) of the game contained in r. For archives
// it is the checksum of the first member with one of extensions, and member
// is that member's base name. For raw files the whole content is hashed and
// member is the base of name. Content is streamed, never buffered whole.
func Checksum(r io.ReaderAt, size int64, name string, extensions []string) (uint32, string, error) {
	format, err := detectAt(r, size, name, extensions)
	if err != nil {
		return 0, "", err
	}

	switch format {
	case FormatRaw:
		crc, err := hashReader(io.NewSectionReader(r, 0, size))
		if err != nil {
			return 0, "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		return crc, filepath.Base(name), nil
	case FormatZIP:
		return checksumZIP(r, size, extensions)
	case Format7z:
		return checksum7z(r, size, extensions)
	case FormatGzip:
		return checksumGzip(r, size, name)
	case FormatTarGz:
		return checksumTarGz(r, size, extensions)
	case FormatTar:
		return checksumTar(io.NewSectionReader(r, 0, size), extensions)
	case FormatRAR:
		return checksumRAR(r, size, extensions)
	default:
		return 0, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// Contents lists the regular files inside an archive. A raw file lists as
// its own base name.
func Contents(r io.ReaderAt, size int64, name string) ([]string, error) {
	format, err := detectAt(r, size, name, nil)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatZIP:
		return listZIP(r, size)
	case Format7z:
		return list7z(r, size)
	case FormatGzip:
		return []string{gunzippedName(name)}, nil
	case FormatTarGz:
		return listTarGz(r, size)
	case FormatTar:
		return listTar(io.NewSectionReader(r, 0, size))
	case FormatRAR:
		return listRAR(r, size)
	default:
		return []string{filepath.Base(name)}, nil
	}
}

// ChecksumFile opens path on fs and runs Checksum over it
func ChecksumFile(fs afero.Fs, path string, extensions []string) (uint32, string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, "", fmt.Errorf("failed to stat file: %w", err)
	}
	return Checksum(f, info.Size(), path, extensions)
}

// ContentsFile opens path on fs and runs Contents over it
func ContentsFile(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return Contents(f, info.Size(), path)
}

// detectAt reads the header from r and runs Detect
func detectAt(r io.ReaderAt, size int64, name string, extensions []string) (Format, error) {
	n := int64(headerSize)
	if size < n {
		n = size
	}
	header := make([]byte, n)
	if _, err := r.ReadAt(header, 0); err != nil && err != io.EOF {
		return FormatUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	return Detect(header, name, extensions), nil
}

// hasExtension checks if a filename has one of the given extensions (case-insensitive)
func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func hashReader(r io.Reader) (uint32, error) {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
