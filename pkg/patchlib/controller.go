package patchlib

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rpatcher/rpatcher/pkg/logger"
	"github.com/rpatcher/rpatcher/pkg/warplib"
)

// Config bundles everything the Controller needs to drive a full update or
// a manual patch, mirroring spec §6.6's configuration record.
type Config struct {
	Mirrors         []MirrorInfo
	PreferredMirror string
	WorkingDir      string
	PatcherStem     string
	DefaultGRFName  string
	InPlace         bool
	CreateGRF       bool
	CheckIntegrity  bool
	// MaxBytesPerSec caps aggregate download throughput per archive fetch.
	// Zero means unlimited.
	MaxBytesPerSec int64
	// OpenArchive decodes a downloaded/externally-supplied archive. See
	// ApplyOpts.OpenArchive for why this is injected rather than
	// hard-imported.
	OpenArchive func(path string) (Archive, error)
}

func (c Config) cachePath() string {
	return filepath.Join(c.WorkingDir, c.PatcherStem+".dat")
}

// Controller is the state machine described in spec §4.F: Idle, Updating,
// Applying(p). It owns the lock, the cache file, and the temp directory
// for the duration of each busy state; the UI only ever sees Status
// values and only ever sends Command values.
type Controller struct {
	Config  Config
	History *History
	Log     logger.Logger
}

// NewController constructs a Controller. history may be nil to disable the
// supplementary audit trail.
func NewController(cfg Config, history *History, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Controller{Config: cfg, History: history, Log: log}
}

// Run is the Controller's main loop: Idle, reading commands until Quit.
// commands and status are the two typed channels crossing the UI/core
// boundary (spec §5); a closed commands channel is treated the same as an
// explicit Quit.
func (c *Controller) Run(ctx context.Context, commands chan Command, status chan<- Status) {
	for {
		cmd, ok := <-commands
		if !ok {
			return
		}
		switch cmd.Kind {
		case CommandStartUpdate:
			c.runUpdate(ctx, commands, status)
		case CommandManualPatch:
			c.runManualPatch(cmd.ArchivePath, status)
		case CommandResetCache:
			if err := DeleteCache(c.Config.cachePath()); err != nil {
				c.Log.Warning("reset cache: %v", err)
			}
		case CommandCancelUpdate:
			// Idle ignores cancellation — nothing is running.
		case CommandQuit:
			return
		}
	}
}

// runUpdate executes the full C→D→E pipeline under the lock, emitting
// Ready or Error(msg) on every exit path. It reads further commands off
// the same channel to detect cancellation mid-pipeline; non-cancel
// commands received while busy are ignored, per spec §4.F's state table.
func (c *Controller) runUpdate(ctx context.Context, commands <-chan Command, status chan<- Status) {
	if err := warplib.ValidateDownloadDirectory(c.Config.WorkingDir); err != nil {
		c.emitResult(err, status)
		return
	}

	lock, err := AcquireLock(c.Config.WorkingDir, c.Config.PatcherStem)
	if err != nil {
		c.emitResult(err, status)
		return
	}
	defer lock.Release()

	tempDir, err := os.MkdirTemp(c.Config.WorkingDir, "."+c.Config.PatcherStem+"-update-*")
	if err != nil {
		c.emitResult(err, status)
		return
	}
	defer os.RemoveAll(tempDir)

	prober := NewProber(c.Log)
	outcome, err := prober.Probe(ctx, c.Config.Mirrors, c.Config.PreferredMirror, commands)
	if err != nil {
		c.emitResult(err, status)
		return
	}

	cache, err := ReadCache(c.Config.cachePath())
	if err != nil {
		c.Log.Warning("read cache: %v", err)
	}
	toFetch := FilterPatchesAgainstCache(outcome.Patches, cache, c.Log).SortByIndex()

	engine := NewEngine(c.Log)
	_, pending, err := engine.Run(ctx, toFetch, DownloadOpts{
		PatchURL:        outcome.PatchURL,
		TempDir:         tempDir,
		EnsureIntegrity: c.Config.CheckIntegrity,
		StatusCh:        status,
		OpenArchive:     c.Config.OpenArchive,
		MaxBytesPerSec:  c.Config.MaxBytesPerSec,
	}, commands)
	if err != nil {
		c.emitResult(err, status)
		return
	}

	applier := NewApplier(c.Log)
	err = applier.Apply(pending, ApplyOpts{
		WorkingDir:     c.Config.WorkingDir,
		CachePath:      c.Config.cachePath(),
		DefaultGRFName: c.Config.DefaultGRFName,
		InPlace:        c.Config.InPlace,
		CreateGRF:      c.Config.CreateGRF,
		StatusCh:       status,
		OpenArchive:    c.Config.OpenArchive,
		OnApplied: func(p PendingPatch, strategy string) {
			if c.History != nil {
				if herr := c.History.Record(p.Info.Index, p.Info.FileName, outcome.Mirror, strategy); herr != nil {
					c.Log.Warning("history record: %v", herr)
				}
			}
		},
	}, commands)
	c.emitResult(err, status)
}

// runManualPatch runs only the applier (spec's Applying(p) state) against
// a single externally-supplied archive, still under the lock.
func (c *Controller) runManualPatch(path string, status chan<- Status) {
	lock, err := AcquireLock(c.Config.WorkingDir, c.Config.PatcherStem)
	if err != nil {
		c.emitResult(err, status)
		return
	}
	defer lock.Release()

	applier := NewApplier(c.Log)
	_, err = applier.ApplyOne(path, ApplyOpts{
		WorkingDir:     c.Config.WorkingDir,
		CachePath:      c.Config.cachePath(),
		DefaultGRFName: c.Config.DefaultGRFName,
		InPlace:        c.Config.InPlace,
		CreateGRF:      c.Config.CreateGRF,
		OpenArchive:    c.Config.OpenArchive,
	})
	if err != nil {
		c.emitResult(err, status)
		return
	}
	c.emit(status, ManualPatchAppliedStatus(filepath.Base(path)))
	c.emit(status, ReadyStatus())
}

// emitResult converts a pipeline error into a terminal status: nil or
// ErrInterrupted both return to Ready; everything else becomes
// Error(msg), matching spec §7 ("nothing throws out of the core thread").
func (c *Controller) emitResult(err error, status chan<- Status) {
	if err == nil || errors.Is(err, ErrInterrupted) {
		c.emit(status, ReadyStatus())
		return
	}
	c.emit(status, ErrorStatus(err.Error()))
}

func (c *Controller) emit(status chan<- Status, s Status) {
	if status == nil {
		return
	}
	status <- s
}
