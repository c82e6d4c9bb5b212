// Package patchlib implements the patching pipeline: mirror probing,
// concurrent archive downloads, sequential patch application, and the
// persistent cache and lock that make runs resumable and single-instance.
package patchlib

import "errors"

// Sentinel error kinds. Components attach context with fmt.Errorf's %w so
// callers can still recover the kind with errors.Is.
var (
	// ErrConfigInvalid is returned by config loading for a malformed record.
	ErrConfigInvalid = errors.New("configuration is invalid")

	// ErrAlreadyRunning is returned by the lock manager when another
	// patcher instance already holds the lock for this installation.
	ErrAlreadyRunning = errors.New("another patcher instance is already running")

	// ErrNoMirrorAvailable is returned by the mirror prober when every
	// configured mirror failed to probe successfully.
	ErrNoMirrorAvailable = errors.New("no mirror available")

	// ErrDownloadFailed wraps a transport, HTTP, or disk-write failure for
	// one archive. Use MirrorError/PatchError to recover the file name.
	ErrDownloadFailed = errors.New("download failed")

	// ErrCorrupt is returned when an archive's integrity record is present
	// but does not validate.
	ErrCorrupt = errors.New("archive is corrupt")

	// ErrApplyFailed is returned when an archive fails to merge into its
	// target container or disk tree.
	ErrApplyFailed = errors.New("patch application failed")

	// ErrMissingTarget is returned when a GRF-merging patch names a target
	// container that does not exist and creation was not requested.
	ErrMissingTarget = errors.New("target container does not exist")

	// ErrInterrupted is returned when a command-channel cancellation won a
	// race against in-flight work. Not surfaced to the user as an error.
	ErrInterrupted = errors.New("interrupted")

	// ErrCacheWriteFailed is not returned or logged by Apply: a failed cache
	// write after an apply is logged with its underlying error and the run
	// continues; correctness is preserved by idempotent re-application.
	ErrCacheWriteFailed = errors.New("cache write failed")

	// ErrEntryNotFound is returned by Archive.IsValid when the archive
	// carries no integrity record at all; absence is treated as valid by
	// callers, never as an error condition in its own right.
	ErrEntryNotFound = errors.New("integrity record not found")

	// ErrUnsupportedScheme is returned when a mirror URL's scheme has no
	// registered transport.
	ErrUnsupportedScheme = errors.New("unsupported mirror URL scheme")
)

// MirrorError wraps a sentinel error kind with the offending mirror's name.
type MirrorError struct {
	Mirror string
	Kind   error
	Cause  error
}

func (e *MirrorError) Error() string {
	if e.Cause != nil {
		return "mirror " + e.Mirror + ": " + e.Kind.Error() + ": " + e.Cause.Error()
	}
	return "mirror " + e.Mirror + ": " + e.Kind.Error()
}

func (e *MirrorError) Unwrap() error { return e.Kind }

// PatchError wraps a sentinel error kind with the offending file name, per
// the DownloadFailed(file_name)/Corrupt(file_name)/ApplyFailed(file_name)
// taxonomy.
type PatchError struct {
	FileName string
	Kind     error
	Cause    error
}

func (e *PatchError) Error() string {
	if e.Cause != nil {
		return e.Kind.Error() + " (" + e.FileName + "): " + e.Cause.Error()
	}
	return e.Kind.Error() + " (" + e.FileName + ")"
}

func (e *PatchError) Unwrap() error { return e.Kind }
