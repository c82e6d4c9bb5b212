package patchlib

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// ftpTransport fetches from mirrors over anonymous FTP. Credentials are
// never accepted from a mirror URL — per the "no authentication with
// mirrors" non-goal every connection logs in as anonymous/anonymous,
// matching the teacher's own FTP downloader's default when a URL carries
// no userinfo.
type ftpTransport struct{}

func newFTPTransport() *ftpTransport { return &ftpTransport{} }

func (t *ftpTransport) dial(ctx context.Context, host string) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(host,
		ftp.DialWithTimeout(30*time.Second),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	if err := conn.Login("anonymous", "anonymous"); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

func ftpHostAndPath(base, fileName string) (host, remotePath string, err error) {
	u, err := url.Parse(joinURL(base, fileName))
	if err != nil {
		return "", "", err
	}
	host = u.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}
	return host, u.Path, nil
}

func (t *ftpTransport) FetchPlist(ctx context.Context, plistURL string) (io.ReadCloser, error) {
	u, err := url.Parse(plistURL)
	if err != nil {
		return nil, err
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}
	conn, err := t.dial(ctx, host)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit()
		return nil, err
	}
	return &ftpReadCloser{resp: resp, conn: conn}, nil
}

func (t *ftpTransport) Probe(ctx context.Context, patchURL, fileName string) error {
	host, remotePath, err := ftpHostAndPath(patchURL, fileName)
	if err != nil {
		return err
	}
	conn, err := t.dial(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if _, err := conn.FileSize(remotePath); err != nil {
		return fmt.Errorf("SIZE %s: %w", remotePath, err)
	}
	return nil
}

func (t *ftpTransport) Fetch(ctx context.Context, patchURL, fileName string) (io.ReadCloser, int64, error) {
	host, remotePath, err := ftpHostAndPath(patchURL, fileName)
	if err != nil {
		return nil, 0, err
	}
	conn, err := t.dial(ctx, host)
	if err != nil {
		return nil, 0, err
	}

	size, err := conn.FileSize(remotePath)
	if err != nil {
		conn.Quit()
		return nil, 0, err
	}
	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		conn.Quit()
		return nil, 0, err
	}
	resp, err := conn.Retr(remotePath)
	if err != nil {
		conn.Quit()
		return nil, 0, err
	}
	return &ftpReadCloser{resp: resp, conn: conn}, size, nil
}

func (t *ftpTransport) Close() error { return nil }

// ftpReadCloser closes both the FTP response stream and its owning
// connection, since jlaffaye/ftp connections are single-use per retrieval
// in this client (no connection pooling across archives).
type ftpReadCloser struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReadCloser) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReadCloser) Close() error {
	err := r.resp.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}
