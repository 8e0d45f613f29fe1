package workflow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OpenLocalFile picks the file at path for upload. Directories and files
// larger than maxSize are refused before anything is sent; maxSize <= 0
// disables the size check. The caller closes the returned Closer.
func OpenLocalFile(path string, maxSize int64) (LocalFile, io.Closer, error) {
	if path == "" {
		return LocalFile{}, nil, fmt.Errorf("path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	if info.IsDir() {
		return LocalFile{}, nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return LocalFile{}, nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), maxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return LocalFile{}, nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return LocalFile{Name: filepath.Base(path), Content: f}, f, nil
}
