//go:build windows

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// Lock is a coarse, cross-process advisory lock taken on the sentinel
// file <root>/../locks/install.lock, beside the store root. See
// lock_unix.go for the rationale.
type Lock struct {
	file *os.File
}

// AcquireLock blocks until the coarse store lock is held.
func AcquireLock(root string) (*Lock, error) {
	locksDir := filepath.Join(root, "..", "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating locks directory: %w", err)
	}

	path := filepath.Join(locksDir, "install.lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	overlapped := windows.Overlapped{}
	if err := windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &overlapped); err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return &Lock{file: f}, nil
}

// Release drops the lock and closes the sentinel file descriptor.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	overlapped := windows.Overlapped{}
	if err := windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &overlapped); err != nil {
		_ = l.file.Close()

		return fmt.Errorf("unlocking: %w", err)
	}

	return l.file.Close()
}
