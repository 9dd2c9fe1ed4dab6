// Package flock provides an exclusive, cross-process lock on a file.
// It guards tool-cache writes shared by concurrent jobs on one machine.
package flock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Lock is a held file lock.
type Lock struct {
	f    *os.File
	once sync.Once
	err  error
}

// Acquire creates the lock file (and its parent directory) if needed and
// blocks until an exclusive lock is held.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the file. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	l.once.Do(func() {
		l.err = unlockFile(l.f)
		if err := l.f.Close(); l.err == nil {
			l.err = err
		}
	})
	return l.err
}
