package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempPattern returns the os.CreateTemp pattern WriteFileAtomic uses for
// path. Temp files are hidden and never end in the target's extension, so
// directory scans for finished files skip them.
func TempPattern(path string) string {
	return "." + filepath.Base(path) + ".tmp-*"
}

// WriteFileAtomic replaces path with data so that concurrent readers see
// either the old content or the new content, never a partial write. The
// parent directory must exist.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)

	// The rename below is only atomic within one filesystem.
	tmp, err := os.CreateTemp(dir, TempPattern(path))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir persists the rename. Some platforms cannot fsync a directory; the
// file itself is already durable, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
