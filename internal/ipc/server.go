package ipc

import (
	"net"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/rpatcher/rpatcher/pkg/logger"
	"github.com/rpatcher/rpatcher/pkg/patchlib"
)

// Server accepts local connections and bridges them to a Controller's
// Command/Status channels over JSON-RPC, one jrpc2.Server per accepted
// connection (mirroring the teacher's Server.Start accept loop in
// internal/server/server.go, minus its custom length-prefixed framing —
// jrpc2 owns message framing here instead).
type Server struct {
	log      logger.Logger
	commands chan<- patchlib.Command
	notifier *notifier
}

// NewServer constructs a Server that forwards RPC-originated commands onto
// commands. The caller is responsible for also feeding status updates back
// in via Broadcast (typically by draining a patchlib.Status channel in a
// loop next to Controller.Run).
func NewServer(log logger.Logger, commands chan<- patchlib.Command) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Server{log: log, commands: commands, notifier: newNotifier(log)}
}

// Broadcast pushes a Status to every currently connected client as a
// "patcher.status" notification. Safe to call from any goroutine.
func (s *Server) Broadcast(status patchlib.Status) {
	s.notifier.broadcast("patcher.status", toStatusNotification(status))
}

// Serve accepts connections on l until it is closed, running one jrpc2
// server per connection. Returns once l.Accept begins returning errors
// (typically because l was closed by the caller during shutdown).
func (s *Server) Serve(l net.Listener) error {
	defer l.Close()
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	m := &methods{commands: s.commands}
	mux := handler.Map{
		"patcher.startUpdate":  handler.New(m.startUpdate),
		"patcher.cancelUpdate": handler.New(m.cancelUpdate),
		"patcher.resetCache":   handler.New(m.resetCache),
		"patcher.manualPatch":  handler.New(m.manualPatch),
		"patcher.quit":         handler.New(m.quit),
	}

	srv := jrpc2.NewServer(mux, nil)
	s.notifier.register(srv)
	defer s.notifier.unregister(srv)

	srv.Start(newConnChannel(conn))
	if err := srv.Wait(); err != nil {
		s.log.Warning("ipc: connection closed: %v", err)
	}
}
