package patchlib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rpatcher/rpatcher/pkg/logger"
	"github.com/rpatcher/rpatcher/pkg/warplib"
)

// DownloadOpts configures one run of the Download Engine.
type DownloadOpts struct {
	PatchURL        string
	TempDir         string
	EnsureIntegrity bool
	StatusCh        chan<- Status
	// OpenArchive decodes a downloaded archive to check its integrity
	// record. Required only when EnsureIntegrity is set. See
	// ApplyOpts.OpenArchive for why this is injected rather than
	// hard-imported.
	OpenArchive func(path string) (Archive, error)
	// MaxBytesPerSec caps aggregate download throughput per archive fetch,
	// zero is unlimited.
	MaxBytesPerSec int64
}

// Engine is the bounded, cancellable concurrent download fan-out (spec
// §4.D). Each PatchInfo in the input list is fetched as a whole archive —
// unlike the teacher's per-file range-segmented dloader, this engine
// parallelizes across archives, not within one.
type Engine struct {
	Router *TransportRouter
	Log    logger.Logger
}

// NewEngine constructs an Engine with a fresh transport router.
func NewEngine(log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Engine{Router: NewTransportRouter(), Log: log}
}

type progressState struct {
	mu          sync.Mutex
	done        int
	total       int
	windowStart time.Time
	windowBytes int64
}

// addBytes records n more bytes transferred and, if the 1-second window has
// elapsed, emits a DownloadInProgress tick and resets the window. Best
// effort: a full status channel is never blocked on — sends are dropped if
// the channel has no room, since losing a progress tick is not an error.
func (p *progressState) addBytes(n int64, statusCh chan<- Status) {
	p.mu.Lock()
	p.windowBytes += n
	elapsed := time.Since(p.windowStart)
	var tick Status
	emit := false
	if elapsed >= ProgressWindow {
		bps := float64(p.windowBytes) / elapsed.Seconds()
		tick = DownloadProgressStatus(p.done, p.total, bps)
		emit = true
		p.windowStart = time.Now()
		p.windowBytes = 0
	}
	p.mu.Unlock()

	if emit && statusCh != nil {
		select {
		case statusCh <- tick:
		default:
		}
	}
}

func (p *progressState) markDone() {
	p.mu.Lock()
	p.done++
	p.mu.Unlock()
}

// Run downloads every patch in list concurrently (bounded to
// MaxConcurrentDownloads), racing the whole batch against cmds for
// cancellation. On success it returns the patches sorted ascending by
// index — the only point in the pipeline where apply order is established.
func (e *Engine) Run(ctx context.Context, list PatchList, opts DownloadOpts, cmds <-chan Command) (PatchList, []PendingPatch, error) {
	if len(list) == 0 {
		return nil, nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Race the whole concurrent fan-out against the command channel: the
	// first of "all downloads settled" or "cancel observed" wins. Updating
	// ignores ResetCache/StartUpdate/ManualPatch (spec §4.F state table), so
	// this loops rather than returning after the first command; otherwise
	// one of those arriving during the download phase would leave a later
	// genuine CancelUpdate unread for the rest of the batch.
	cancelCh := make(chan struct{})
	go func() {
		for {
			select {
			case cmd, ok := <-cmds:
				if !ok || cmd.Kind == CommandCancelUpdate || cmd.Kind == CommandQuit {
					cancel()
					close(cancelCh)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	sem := semaphore.NewWeighted(MaxConcurrentDownloads)
	progress := &progressState{total: len(list), windowStart: time.Now()}

	results := make([]PendingPatch, len(list))
	errs := make([]error, len(list))

	var wg sync.WaitGroup
	for i, p := range list {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		// A panic in one archive's fetch must not take the whole batch
		// down with it; warplib.SafeGo recovers it into errs[i], the same
		// path a normal fetch error takes.
		i, p := i, p
		warplib.SafeGo(nil, &wg, "fetch:"+p.FileName, func(r interface{}) {
			errs[i] = fmt.Errorf("panic fetching %s: %v", p.FileName, r)
		}, func() {
			defer sem.Release(1)
			pending, err := e.fetchOne(ctx, p, opts, progress)
			results[i] = pending
			errs[i] = err
		})
	}
	wg.Wait()

	select {
	case <-cancelCh:
		return nil, nil, ErrInterrupted
	default:
	}

	for i, err := range errs {
		if err != nil {
			return nil, nil, &PatchError{FileName: list[i].FileName, Kind: classifyDownloadErr(err), Cause: err}
		}
	}

	sorted := make([]PendingPatch, len(results))
	copy(sorted, results)
	sortPending(sorted)

	out := make(PatchList, len(sorted))
	for i, pp := range sorted {
		out[i] = pp.Info
	}
	return out, sorted, nil
}

func classifyDownloadErr(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return ErrCorrupt
	}
	return ErrDownloadFailed
}

func sortPending(p []PendingPatch) {
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && p[j].Info.Index < p[j-1].Info.Index; j-- {
			p[j], p[j-1] = p[j-1], p[j]
		}
	}
}

// fetchOne downloads one archive, retrying transient transport errors with
// exponential backoff (grounded on the teacher's retry.go, used here at the
// whole-archive level rather than per range-segment) before falling back to
// the archive-embedded integrity check.
func (e *Engine) fetchOne(ctx context.Context, p PatchInfo, opts DownloadOpts, progress *progressState) (PendingPatch, error) {
	// The remote name (used against the mirror) and the sanitized local
	// name (used on disk) are allowed to differ: a plist entry is
	// attacker-reachable content (spec §4.D), so it is never trusted
	// verbatim as a local path component.
	localPath := filepath.Join(opts.TempDir, warplib.SanitizeFilename(p.FileName))

	retryCfg := warplib.DefaultRetryConfig()
	state := &warplib.RetryState{}
	for {
		err := e.attemptFetch(ctx, p, opts, progress, localPath)
		if err == nil {
			break
		}
		state.Attempts++
		state.LastError = err
		state.LastAttempt = time.Now()
		category := warplib.ClassifyError(err)
		if !retryCfg.ShouldRetry(state, err) {
			return PendingPatch{}, err
		}
		e.Log.Warning("%s: retrying after transient error (attempt %d): %v", p.FileName, state.Attempts, err)
		if werr := retryCfg.WaitForRetry(ctx, state, category); werr != nil {
			return PendingPatch{}, werr
		}
	}

	if opts.EnsureIntegrity {
		if err := verifyIntegrity(localPath, opts.OpenArchive); err != nil {
			return PendingPatch{}, err
		}
	}

	progress.markDone()
	return PendingPatch{Info: p, LocalPath: localPath}, nil
}

// attemptFetch runs a single download attempt for p, streaming the body to
// localPath. When the transport exposes response headers (HeaderedReadCloser),
// any Digest/Content-MD5 header is verified against the bytes actually
// written as a second, transport-level integrity check ahead of the
// archive-embedded one in verifyIntegrity.
func (e *Engine) attemptFetch(ctx context.Context, p PatchInfo, opts DownloadOpts, progress *progressState, localPath string) error {
	transport, err := e.Router.For(opts.PatchURL)
	if err != nil {
		return err
	}
	defer transport.Close()

	body, contentLength, err := transport.Fetch(ctx, opts.PatchURL, p.FileName)
	if err != nil {
		return err
	}

	if err := warplib.CheckDiskSpace(opts.TempDir, contentLength); err != nil {
		body.Close()
		return err
	}

	var headerHasher hash.Hash
	var wantChecksum []byte
	if hc, ok := body.(HeaderedReadCloser); ok {
		if checksums := warplib.ExtractChecksums(hc.Header()); len(checksums) > 0 {
			algo := warplib.SelectBestAlgorithm(checksums)
			for _, c := range checksums {
				if c.Algorithm == algo {
					wantChecksum = c.Value
					break
				}
			}
			if h, herr := warplib.NewHasher(algo); herr == nil {
				headerHasher = h
			}
		}
	}

	// Rate-limiting wraps after the header/checksum inspection above, since
	// it replaces the concrete stream with a plain io.ReadCloser.
	stream := body
	if opts.MaxBytesPerSec > 0 {
		stream = warplib.NewRateLimitedReadCloser(body, opts.MaxBytesPerSec)
	}
	defer stream.Close()

	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	for {
		select {
		case <-ctx.Done():
			f.Close()
			os.Remove(localPath)
			return ctx.Err()
		default:
		}

		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(localPath)
				return werr
			}
			if headerHasher != nil {
				headerHasher.Write(buf[:n])
			}
			progress.addBytes(int64(n), opts.StatusCh)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(localPath)
			return rerr
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if headerHasher != nil && !bytes.Equal(headerHasher.Sum(nil), wantChecksum) {
		os.Remove(localPath)
		return ErrCorrupt
	}

	return nil
}

// verifyIntegrity opens the downloaded archive and consults its embedded
// integrity record, per spec §4.D: absent record ⇒ ok, present-and-valid
// ⇒ ok, present-and-invalid ⇒ ErrCorrupt. Decoding is delegated to
// whichever concrete Archive implementation the caller's apply stage also
// uses — injected as openArchive so the engine never imports a concrete
// archive format package (avoiding an import cycle with patchlib/thorfile).
func verifyIntegrity(path string, openArchive func(path string) (Archive, error)) error {
	if openArchive == nil {
		return nil
	}
	archive, err := openArchive(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	valid, err := archive.IsValid()
	if err == ErrEntryNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !valid {
		return ErrCorrupt
	}
	return nil
}
