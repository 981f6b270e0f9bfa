// Package filelock provides lock-guarded, atomic access to small JSON state files
// (session drafts and store snapshots) shared between goroutines and processes.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

func lockPath(path string) string { return path + ".lock" }

// WriteFile acquires the exclusive lock for path and replaces its content atomically.
// Readers never observe a partially written file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	fl := flock.New(lockPath(path))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", path, err)
	}
	defer fl.Unlock()
	return atomicWrite(path, data)
}

// ReadFile reads path under a shared lock. A missing file returns os.ErrNotExist.
func ReadFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	fl := flock.New(lockPath(path))
	if err := fl.RLock(); err != nil {
		return nil, fmt.Errorf("acquire read lock on %s: %w", path, err)
	}
	defer fl.Unlock()
	return os.ReadFile(path)
}

// Remove deletes path and its lock file. Removing a missing file is not an error.
func Remove(path string) error {
	fl := flock.New(lockPath(path))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", path, err)
	}
	err := os.Remove(path)
	_ = fl.Unlock()
	_ = os.Remove(lockPath(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// atomicWrite writes to a temp file in the target directory and renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	ok = true
	return nil
}
