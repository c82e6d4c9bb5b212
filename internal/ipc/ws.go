package ipc

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface —
// the same adaptation as the teacher's internal/server/rpc_ws.go, reused
// here so a browser-based GUI frontend can attach over WebSocket instead of
// the Unix-socket/named-pipe transport Listen/Dial provide.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// WebSocketHandler returns an http.Handler that upgrades each request to a
// WebSocket and serves the same RPC method set as Serve, registering the
// per-connection jrpc2 server with the same notifier so a Broadcast reaches
// WebSocket clients alongside Unix-socket/named-pipe ones.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := cws.Accept(w, r, nil)
		if err != nil {
			s.log.Warning("ipc: websocket upgrade failed: %v", err)
			return
		}

		ch := &wsChannel{conn: conn, ctx: r.Context()}
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

		srv.Start(ch)
		if err := srv.Wait(); err != nil {
			s.log.Warning("ipc: websocket connection closed: %v", err)
		}
	})
}
