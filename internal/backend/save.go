package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OutputPath resolves where document id is saved: output itself, or
// output/id when output is an existing directory.
func OutputPath(output, id string) string {
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filepath.Base(id))
	}
	return output
}

// Save writes the download to path through a temporary file in the same
// directory, so a failed transfer never leaves a partial document behind.
// The saved file has mode 0644. It closes d.
func (d *Download) Save(path string) (int64, error) {
	defer d.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("saving %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, d)
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("saving %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("saving %s: %w", path, err)
	}
	return n, nil
}

// Downloader fetches a stored document.
type Downloader interface {
	Download(ctx context.Context, id string) (*Download, error)
}

// SaveDocument downloads id and saves it to output, a file or an existing
// directory. It returns the path written and its size. A backend rejection
// is reported with the backend's own message.
func SaveDocument(ctx context.Context, api Downloader, id, output string) (string, int64, error) {
	dl, err := api.Download(ctx, id)
	if err != nil {
		if body, ok := ResponseBody(err); ok {
			return "", 0, fmt.Errorf("download %s: %s", id, body)
		}
		return "", 0, err
	}
	path := OutputPath(output, id)
	n, err := dl.Save(path)
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}
