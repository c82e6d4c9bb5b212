package patchlib

import (
	"errors"
	"os"
)

// LockHandle is a held advisory lock. Release is idempotent and must be
// called on every exit path of the caller (normal, error, cancellation, or
// panic via defer) — the lock file's contents are never inspected, only
// its identity.
type LockHandle struct {
	file *os.File
}

// AcquireLock creates (or opens) "<stem>.lock" in dir and takes a
// non-blocking exclusive advisory lock on it. If another process already
// holds the lock, AcquireLock returns ErrAlreadyRunning.
func AcquireLock(dir, stem string) (*LockHandle, error) {
	path := dir + string(os.PathSeparator) + stem + ".lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, errLockHeld) {
			return nil, ErrAlreadyRunning
		}
		return nil, err
	}
	return &LockHandle{file: f}, nil
}

// Release unlocks and closes the lock file. Safe to call multiple times.
func (h *LockHandle) Release() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := unlockFile(h.file)
	closeErr := h.file.Close()
	h.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

var errLockHeld = errors.New("lock already held")
