package transcoder

import (
	"fmt"
	"os"
	"path/filepath"

	"media-server/internal/logging"
)

// ClearDirectory removes everything inside dir and returns the bytes freed.
// A missing or empty dir path is not an error.
func ClearDirectory(dir string) (int64, error) {
	if dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var freed int64
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		size, err := DirSize(path)
		if err != nil {
			logging.Warn("failed to size %s: %v", path, err)
		}
		if err := os.RemoveAll(path); err != nil {
			logging.Warn("failed to remove %s: %v", path, err)
			continue
		}
		freed += size
	}

	logging.Info("Cleared %s: freed %d bytes", dir, freed)
	return freed, nil
}

// DirSize returns the total size of the regular files under path, or the
// size of path itself when it is a file.
func DirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
