package config

import (
	"os"
	"path/filepath"
)

// AtomicWrite writes data to path so readers see either the old or the new
// content. Missing parent directories are created.
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return atomicWriteFile(path, data, perm)
}
