//go:build !windows

package patchlib

import (
	"errors"
	"syscall"
)

// isCrossDeviceError reports whether err is EXDEV, the errno os.Rename
// surfaces when src and dst live on different filesystems or mounts.
func isCrossDeviceError(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EXDEV
	}
	return false
}
