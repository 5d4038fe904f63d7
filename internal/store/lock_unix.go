//go:build !windows

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock is a coarse, cross-process advisory lock taken on the sentinel
// file <root>/../locks/install.lock, beside the store root. Spec.md §4.8 requires exactly one such lock be
// held for the duration of an orchestrator call, serializing against
// other processes of this system while readers traverse already-complete
// directories without any coordination at all.
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

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
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

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()

		return fmt.Errorf("unlocking: %w", err)
	}

	return l.file.Close()
}
