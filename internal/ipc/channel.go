// Package ipc bridges the Controller's Command/Status channels (spec §5) to
// an external process over JSON-RPC, the same role the teacher's
// internal/server package plays for its download manager: a local socket
// (Unix domain socket, or named pipe on Windows) carrying jrpc2 requests and
// push notifications, so a GUI frontend never needs to link against Go
// channels directly.
package ipc

import (
	"bufio"
	"io"
	"net"
)

// connChannel adapts a net.Conn to the jrpc2 Channel interface (Send/Recv/
// Close), the same shape as the teacher's rpc_ws.go wsChannel — but framing
// each message with a trailing newline instead of WebSocket message
// boundaries, since a plain stream socket has no built-in framing.
type connChannel struct {
	conn net.Conn
	r    *bufio.Reader
}

func newConnChannel(conn net.Conn) *connChannel {
	return &connChannel{conn: conn, r: bufio.NewReader(conn)}
}

func (c *connChannel) Send(data []byte) error {
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *connChannel) Recv() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if len(line) == 0 && err == io.EOF {
		return nil, io.EOF
	}
	return line, nil
}

func (c *connChannel) Close() error {
	return c.conn.Close()
}
