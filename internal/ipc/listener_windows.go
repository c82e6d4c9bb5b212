//go:build windows

package ipc

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// DefaultSocketPath returns the named pipe path used when no explicit path
// is configured. workingDir is hashed into the pipe name so two patcher
// instances pointed at different game installs don't collide (named pipes
// have no directory namespace to isolate them the way a Unix socket path
// does).
func DefaultSocketPath(workingDir string) string {
	return fmt.Sprintf(`\\.\pipe\rpatcher-%x`, hashWorkingDir(workingDir))
}

// pipeSecurityDescriptor restricts the pipe to SYSTEM, built-in
// Administrators, and the pipe's creator — the same restricted descriptor
// the teacher uses in internal/server/listener_windows.go, preventing other
// local users from attaching to the patcher's control channel.
const pipeSecurityDescriptor = "D:(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;CO)"

// Listen creates a Windows named pipe listener at path (e.g.
// `\\.\pipe\rpatcher`).
func Listen(path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{SecurityDescriptor: pipeSecurityDescriptor}
	return winio.ListenPipe(path, cfg)
}

func hashWorkingDir(workingDir string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(workingDir); i++ {
		h ^= uint32(workingDir[i])
		h *= 16777619
	}
	return h
}
