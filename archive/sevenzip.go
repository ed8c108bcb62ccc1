package archive

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/bodgit/sevenzip"
)

// checksum7z hashes the first game file in a 7z archive
func checksum7z(r io.ReaderAt, size int64, extensions []string) (uint32, string, error) {
	zr, err := sevenzip.NewReader(r, size)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open 7z: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !hasExtension(f.Name, extensions) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return 0, "", fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		crc, err := hashReader(rc)
		rc.Close()
		if err != nil {
			return 0, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return crc, filepath.Base(f.Name), nil
	}

	return 0, "", ErrNoGameFile
}

func list7z(r io.ReaderAt, size int64) ([]string, error) {
	zr, err := sevenzip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z: %w", err)
	}

	var names []string
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}
