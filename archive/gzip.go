package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// checksumGzip hashes the decompressed content of a plain .gz file
func checksumGzip(r io.ReaderAt, size int64, name string) (uint32, string, error) {
	gr, err := gzip.NewReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	crc, err := hashReader(gr)
	if err != nil {
		return 0, "", fmt.Errorf("failed to decompress gzip: %w", err)
	}
	return crc, gunzippedName(name), nil
}

// checksumTarGz hashes the first game file in a tar.gz archive
func checksumTarGz(r io.ReaderAt, size int64, extensions []string) (uint32, string, error) {
	gr, err := gzip.NewReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	return checksumTar(gr, extensions)
}

// checksumTar hashes the first game file in a tar stream
func checksumTar(r io.Reader, extensions []string) (uint32, string, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, "", fmt.Errorf("failed to read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg || !hasExtension(header.Name, extensions) {
			continue
		}

		crc, err := hashReader(tr)
		if err != nil {
			return 0, "", fmt.Errorf("failed to read %s from tar: %w", header.Name, err)
		}
		return crc, filepath.Base(header.Name), nil
	}

	return 0, "", ErrNoGameFile
}

func listTarGz(r io.ReaderAt, size int64) ([]string, error) {
	gr, err := gzip.NewReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	return listTar(gr)
}

func listTar(r io.Reader) ([]string, error) {
	tr := tar.NewReader(r)

	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if header.Typeflag == tar.TypeReg {
			names = append(names, header.Name)
		}
	}
}

// gunzippedName strips the .gz suffix from a file's base name
func gunzippedName(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-3]
	}
	return name
}
