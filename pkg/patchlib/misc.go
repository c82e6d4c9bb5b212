package patchlib

import "time"

const (
	// ChunkSize is the buffer size used for streaming copies (downloads,
	// GRF rewrites, disk overlays), matching the teacher stack's own
	// 32KiB default chunk size.
	ChunkSize = 32 * 1024

	// MaxConcurrentDownloads bounds the download engine's worker pool.
	MaxConcurrentDownloads = 32
)

// ProgressWindow is the minimum wall-clock interval between progress ticks
// emitted by the download engine.
const ProgressWindow = time.Second
