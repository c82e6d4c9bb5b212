//go:build windows

package warplib

// CheckDiskSpace on Windows performs no check: it always returns nil,
// whatever the path and required size.
func CheckDiskSpace(path string, requiredBytes int64) error {
	// TODO: Implement for Windows using GetDiskFreeSpaceEx
	return nil
}
