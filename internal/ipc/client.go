package ipc

import (
	"context"
	"net"

	"github.com/creachadair/jrpc2"
)

// Client is a thin jrpc2 client over the same local socket Server listens
// on — the attach point a GUI frontend uses instead of linking against
// patchlib directly. The reference console UI in cmd/rpatcher does not use
// it: it drives patchlib.Controller in-process, and its serve subcommand
// hosts the Server side.
type Client struct {
	inner *jrpc2.Client
	conn  net.Conn
}

// ClientOptions configures how notifications pushed by the server are
// delivered to the caller.
type ClientOptions struct {
	// OnStatus, if set, is invoked for every "patcher.status" push
	// notification received from the server.
	OnStatus func(StatusUpdate)
}

// StatusUpdate is the client-side decoding of a "patcher.status"
// notification's params.
type StatusUpdate struct {
	Kind        string  `json:"kind"`
	Message     string  `json:"message,omitempty"`
	Done        int     `json:"done,omitempty"`
	Total       int     `json:"total,omitempty"`
	BytesPerSec float64 `json:"bytesPerSec,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
}

// Dial connects to the control socket at path and returns a Client.
func Dial(network, path string, opts *ClientOptions) (*Client, error) {
	conn, err := net.Dial(network, path)
	if err != nil {
		return nil, err
	}

	var onNotify func(*jrpc2.Request)
	if opts != nil && opts.OnStatus != nil {
		onNotify = func(req *jrpc2.Request) {
			if req.Method() != "patcher.status" {
				return
			}
			var su StatusUpdate
			if err := req.UnmarshalParams(&su); err != nil {
				return
			}
			opts.OnStatus(su)
		}
	}

	inner := jrpc2.NewClient(newConnChannel(conn), &jrpc2.ClientOptions{
		OnNotify: onNotify,
	})
	return &Client{inner: inner, conn: conn}, nil
}

// StartUpdate requests the Controller begin an update run.
func (c *Client) StartUpdate(ctx context.Context) error {
	_, err := c.inner.Call(ctx, "patcher.startUpdate", nil)
	return err
}

// CancelUpdate requests cancellation of an in-progress update.
func (c *Client) CancelUpdate(ctx context.Context) error {
	_, err := c.inner.Call(ctx, "patcher.cancelUpdate", nil)
	return err
}

// ResetCache requests the persisted resume cache be deleted.
func (c *Client) ResetCache(ctx context.Context) error {
	_, err := c.inner.Call(ctx, "patcher.resetCache", nil)
	return err
}

// ManualPatch requests a single archive be applied out of band.
func (c *Client) ManualPatch(ctx context.Context, archivePath string) error {
	_, err := c.inner.Call(ctx, "patcher.manualPatch", manualPatchParams{ArchivePath: archivePath})
	return err
}

// Quit requests the Controller's event loop exit.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.inner.Call(ctx, "patcher.quit", nil)
	return err
}

// Close shuts down the client and its underlying connection.
func (c *Client) Close() error {
	c.inner.Close()
	return c.conn.Close()
}
