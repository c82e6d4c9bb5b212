package patchlib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rpatcher/rpatcher/pkg/warplib"
)

type httpTransport struct {
	client *http.Client
}

// newHTTPTransport builds an HTTP client with a bounded, header-scrubbing
// redirect policy instead of net/http's unlimited default: a malicious or
// misconfigured mirror should not be able to bounce a fetch to an
// unrelated host while custom headers ride along.
func newHTTPTransport() *httpTransport {
	client := *http.DefaultClient
	client.CheckRedirect = warplib.RedirectPolicy(warplib.DefaultMaxRedirects)
	return &httpTransport{client: &client}
}

func joinURL(base, fileName string) string {
	return strings.TrimRight(base, "/") + "/" + fileName
}

func (t *httpTransport) FetchPlist(ctx context.Context, plistURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, plistURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", plistURL, resp.Status)
	}
	return resp.Body, nil
}

func (t *httpTransport) Probe(ctx context.Context, patchURL, fileName string) error {
	full := joinURL(patchURL, fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, full, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("HEAD %s: unexpected status %s", full, resp.Status)
	}
	return nil
}

func (t *httpTransport) Fetch(ctx context.Context, patchURL, fileName string) (io.ReadCloser, int64, error) {
	full := joinURL(patchURL, fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("GET %s: unexpected status %s", full, resp.Status)
	}
	return &httpFetchBody{ReadCloser: resp.Body, header: resp.Header}, resp.ContentLength, nil
}

func (t *httpTransport) Close() error { return nil }

// httpFetchBody wraps an HTTP response body so attemptFetch can recover its
// headers (via the HeaderedReadCloser interface) for Digest/Content-MD5
// checksum verification.
type httpFetchBody struct {
	io.ReadCloser
	header http.Header
}

func (b *httpFetchBody) Header() http.Header { return b.header }
