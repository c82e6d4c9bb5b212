package ipc

import (
	"context"

	"github.com/rpatcher/rpatcher/pkg/patchlib"
)

// statusKindName renders a patchlib.StatusKind for the wire, since the JSON
// encoding of a bare int enum is meaningless to a non-Go GUI consumer.
func statusKindName(k patchlib.StatusKind) string {
	switch k {
	case patchlib.StatusReady:
		return "ready"
	case patchlib.StatusError:
		return "error"
	case patchlib.StatusDownloadInProgress:
		return "download_in_progress"
	case patchlib.StatusInstallationInProgress:
		return "installation_in_progress"
	case patchlib.StatusManualPatchApplied:
		return "manual_patch_applied"
	default:
		return "unknown"
	}
}

// statusNotification is the JSON shape pushed as the params of a
// "patcher.status" notification — a flattened, tagged rendering of
// patchlib.Status for consumers outside this module.
type statusNotification struct {
	Kind        string  `json:"kind"`
	Message     string  `json:"message,omitempty"`
	Done        int     `json:"done,omitempty"`
	Total       int     `json:"total,omitempty"`
	BytesPerSec float64 `json:"bytesPerSec,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
}

func toStatusNotification(s patchlib.Status) statusNotification {
	return statusNotification{
		Kind:        statusKindName(s.Kind),
		Message:     s.Message,
		Done:        s.Done,
		Total:       s.Total,
		BytesPerSec: s.BytesPerSec,
		FileName:    s.FileName,
	}
}

// emptyResult is returned by command methods that have nothing to report —
// the command is merely queued onto the Controller's command channel, not
// synchronously executed.
type emptyResult struct{}

// manualPatchParams is the input for patcher.manualPatch.
type manualPatchParams struct {
	ArchivePath string `json:"archivePath"`
}

// methods holds the command channel the RPC handlers enqueue onto. Every
// handler here mirrors the teacher's rpc_methods.go shape (small struct,
// handler.New-wrapped method per RPC call) but, unlike the teacher's
// downloadAdd/downloadPause (which call the manager synchronously), these
// only enqueue a patchlib.Command — the actual state transition happens on
// the Controller's own goroutine, never on the RPC connection's goroutine.
type methods struct {
	commands chan<- patchlib.Command
}

func (m *methods) startUpdate(_ context.Context) (*emptyResult, error) {
	m.commands <- patchlib.StartUpdateCommand()
	return &emptyResult{}, nil
}

func (m *methods) cancelUpdate(_ context.Context) (*emptyResult, error) {
	m.commands <- patchlib.CancelUpdateCommand()
	return &emptyResult{}, nil
}

func (m *methods) resetCache(_ context.Context) (*emptyResult, error) {
	m.commands <- patchlib.ResetCacheCommand()
	return &emptyResult{}, nil
}

func (m *methods) manualPatch(_ context.Context, p *manualPatchParams) (*emptyResult, error) {
	m.commands <- patchlib.ManualPatchCommand(p.ArchivePath)
	return &emptyResult{}, nil
}

func (m *methods) quit(_ context.Context) (*emptyResult, error) {
	m.commands <- patchlib.QuitCommand()
	return &emptyResult{}, nil
}
