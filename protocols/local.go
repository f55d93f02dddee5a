package protocols

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeLocal streams r into localPath, replacing any existing file. A partial
// file is removed when the copy fails.
func writeLocal(localPath string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, fmt.Errorf("create local directory: %w", err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return n, fmt.Errorf("write local file: %w", err)
	}
	return n, nil
}

// openLocal opens a regular local file for upload and returns its size.
func openLocal(localPath string) (*os.File, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", localPath)
	}
	return f, info.Size(), nil
}
