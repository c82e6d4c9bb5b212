package patchlib

// MergeMethod selects how a GRF-merging archive is applied to its target
// container (spec §4.E).
type MergeMethod int

const (
	// InPlace mutates the existing container directly. Cheaper, larger
	// on-disk churn, not crash-safe if interrupted mid-write.
	InPlace MergeMethod = iota
	// OutOfPlace writes the merged container to a sibling temporary file
	// then atomically renames it over the target. Crash-safe at the cost
	// of disk space.
	OutOfPlace
)

// DiskEntry is one overlay operation produced by a disk-merging archive.
type DiskEntry struct {
	// Path is relative to the working directory's root.
	Path   string
	Remove bool
	// Data is nil when Remove is true.
	Data []byte
}

// Archive is the contract the patcher depends on for decoding a single
// patch file (spec §6.3). In a production deployment this would be
// supplied by a real THOR/GRF binding; thorfile.Archive is this repo's own
// complete, self-contained implementation of the same contract.
type Archive interface {
	// UseGRFMerging reports whether this archive merges into a GRF
	// container (true) or overlays the disk tree (false).
	UseGRFMerging() bool

	// TargetGRFName is the container file name this archive wants to
	// merge into. Empty means "use the configured default".
	TargetGRFName() string

	// IsValid checks the archive's embedded integrity record, if any.
	// Absence of a record is reported as (false, ErrEntryNotFound); callers
	// treat that specific error as "valid" per spec §6.3/§4.D.
	IsValid() (bool, error)

	// GRFEntries returns the container entries carried by a GRF-merging
	// archive.
	GRFEntries() []GRFEntry

	// DiskEntries returns the overlay operations carried by a
	// disk-merging archive.
	DiskEntries() []DiskEntry
}
