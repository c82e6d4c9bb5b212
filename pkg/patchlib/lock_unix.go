//go:build !windows

package patchlib

import (
	"errors"
	"os"
	"syscall"
)

// lockFile takes a non-blocking exclusive flock(2) lock, the same call the
// aptutil mirror tool uses for its own single-writer lock file.
func lockFile(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
		return errLockHeld
	}
	return os.NewSyscallError("flock", err)
}

func unlockFile(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	if err != nil {
		return os.NewSyscallError("flock", err)
	}
	return nil
}
