package archive

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/nwaples/rardecode/v2"
)

// checksumRAR hashes the first game file in a RAR archive
func checksumRAR(r io.ReaderAt, size int64, extensions []string) (uint32, string, error) {
	rr, err := rardecode.NewReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return 0, "", fmt.Errorf("failed to open rar: %w", err)
	}

	for {
		header, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, "", fmt.Errorf("failed to read rar entry: %w", err)
		}

		if header.IsDir || !hasExtension(header.Name, extensions) {
			continue
		}

		crc, err := hashReader(rr)
		if err != nil {
			return 0, "", fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		return crc, filepath.Base(header.Name), nil
	}

	return 0, "", ErrNoGameFile
}

func listRAR(r io.ReaderAt, size int64) ([]string, error) {
	rr, err := rardecode.NewReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("failed to open rar: %w", err)
	}

	var names []string
	for {
		header, err := rr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rar entry: %w", err)
		}
		if !header.IsDir {
			names = append(names, header.Name)
		}
	}
}
