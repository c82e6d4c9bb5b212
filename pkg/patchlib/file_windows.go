//go:build windows

package patchlib

import (
	"errors"
	"syscall"
)

// errNotSameDevice is ERROR_NOT_SAME_DEVICE (17 / 0x11), raised when
// renaming a file across drives.
const errNotSameDevice syscall.Errno = 0x11

func isCrossDeviceError(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == errNotSameDevice
	}
	return false
}
