package warplib

import "errors"

var (
	// ErrInsufficientDiskSpace is returned when there is not enough disk space available
	// to download the file.
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")

	// ErrDirectoryNotFound is returned when the specified download directory does not exist.
	ErrDirectoryNotFound = errors.New("download directory does not exist")

	// ErrNotADirectory is returned when the specified path is not a directory.
	ErrNotADirectory = errors.New("path is not a directory")

	// ErrDirectoryNotWritable is returned when the download directory is not writable.
	ErrDirectoryNotWritable = errors.New("download directory is not writable")
)
