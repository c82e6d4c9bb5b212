package patchlib

import (
	"os"
	"path/filepath"

	"github.com/rpatcher/rpatcher/pkg/logger"
)

// ApplyOpts configures one run of the Patch Applier.
type ApplyOpts struct {
	WorkingDir       string
	CachePath        string
	DefaultGRFName   string
	InPlace          bool
	CreateGRF        bool
	StatusCh         chan<- Status
	// OpenArchive decodes the archive at path. Injected by the caller
	// (normally thorfile.Open) so patchlib never imports a concrete
	// archive format package — avoids an import cycle with
	// patchlib/thorfile, which itself depends on patchlib's Archive,
	// GRFEntry, and DiskEntry types.
	OpenArchive func(path string) (Archive, error)
	// OnApplied, if set, is called after each successful apply with
	// enough detail for the caller to append a History row. Errors are
	// the caller's to log-and-ignore.
	OnApplied func(p PendingPatch, strategy string)
}

// Applier sequentially applies pending patches in the order given,
// updating the cache after each (spec §4.E).
type Applier struct {
	Log logger.Logger
}

// NewApplier constructs an Applier.
func NewApplier(log logger.Logger) *Applier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Applier{Log: log}
}

// Apply applies each pending patch in order. cmds is polled before each
// step; on cancellation, Apply returns immediately with nil — patches
// already applied stay durable via the cache, later ones are simply not
// attempted (spec §4.E step 1).
func (a *Applier) Apply(pending []PendingPatch, opts ApplyOpts, cmds <-chan Command) error {
	total := len(pending)
	for i, p := range pending {
		select {
		case cmd, ok := <-cmds:
			if !ok || cmd.Kind == CommandCancelUpdate || cmd.Kind == CommandQuit {
				return nil
			}
		default:
		}

		strategy, err := a.applyOne(p, opts)
		if err != nil {
			return &PatchError{FileName: p.Info.FileName, Kind: ErrApplyFailed, Cause: err}
		}

		if werr := WriteCache(opts.CachePath, PatcherCache{LastPatchIndex: p.Info.Index}); werr != nil {
			// Logged and tolerated per spec §4.B/§7 — correctness is
			// preserved because re-applying an already-applied patch is
			// idempotent (the archive format tolerates overwrite).
			a.Log.Warning("cache write failed after applying %q: %v", p.Info.FileName, werr)
		}

		if opts.OnApplied != nil {
			opts.OnApplied(p, strategy)
		}

		if opts.StatusCh != nil {
			select {
			case opts.StatusCh <- InstallProgressStatus(i+1, total):
			default:
			}
		}
	}
	return nil
}

// ApplyOne opens and applies a single externally-provided archive — the
// Controller's Applying(p) state (spec §4.F), used by the standalone
// ManualPatch command; the update pipeline applies through Apply.
func (a *Applier) ApplyOne(path string, opts ApplyOpts) (string, error) {
	return a.applyOne(PendingPatch{LocalPath: path}, opts)
}

func (a *Applier) applyOne(p PendingPatch, opts ApplyOpts) (strategy string, err error) {
	archive, err := opts.OpenArchive(p.LocalPath)
	if err != nil {
		return "", err
	}

	if archive.UseGRFMerging() {
		target := archive.TargetGRFName()
		if target == "" {
			target = opts.DefaultGRFName
		}
		targetPath := filepath.Join(opts.WorkingDir, target)
		method := OutOfPlace
		if opts.InPlace {
			method = InPlace
		}
		if err := MergeGRF(targetPath, archive.GRFEntries(), method, opts.CreateGRF); err != nil {
			return "", err
		}
		if method == InPlace {
			return "grf-in-place", nil
		}
		return "grf-out-of-place", nil
	}

	if err := applyDiskEntries(opts.WorkingDir, archive.DiskEntries()); err != nil {
		return "", err
	}
	return "disk-overlay", nil
}

func applyDiskEntries(root string, entries []DiskEntry) error {
	for _, e := range entries {
		target := filepath.Join(root, e.Path)
		if e.Remove {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeFileAtomic(target, e.Data); err != nil {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp sibling, syncs, then renames over
// target — the same rename-replaces-atomically approach the teacher's
// moveFile/copyAndDelete helpers use for cross-filesystem file writes.
func writeFileAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return moveFile(tmp, target)
}
