package patchlib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// MirrorTransport is the scheme-specific set of operations the mirror
// prober and download engine need against a single mirror's patch_url
// prefix. HTTP and anonymous FTP are the two schemes wired in this repo
// (see TransportRouter); the interface is deliberately transport-agnostic
// so a future scheme only needs a new factory registration.
type MirrorTransport interface {
	// FetchPlist GETs plistURL and returns its body. Non-2xx/non-success
	// responses are reported as an error.
	FetchPlist(ctx context.Context, plistURL string) (io.ReadCloser, error)

	// Probe confirms patchURL/fileName is reachable without transferring
	// its body (HTTP HEAD, or FTP SIZE).
	Probe(ctx context.Context, patchURL, fileName string) error

	// Fetch opens patchURL/fileName for streaming download.
	Fetch(ctx context.Context, patchURL, fileName string) (io.ReadCloser, int64, error)

	// Close releases any transport-level resources (e.g. a pooled FTP
	// connection).
	Close() error
}

// HeaderedReadCloser is optionally implemented by the stream a
// MirrorTransport.Fetch returns, to expose response headers for
// opportunistic checksum verification. The download engine type-asserts
// for it; transports with no header concept (FTP) simply don't implement
// it and are skipped.
type HeaderedReadCloser interface {
	io.ReadCloser
	Header() http.Header
}

// TransportFactory builds a MirrorTransport for a given scheme.
type TransportFactory func() (MirrorTransport, error)

// TransportRouter dispatches to a MirrorTransport by URL scheme, the same
// shape as the teacher's own SchemeRouter for protocol downloaders.
type TransportRouter struct {
	routes map[string]TransportFactory
}

// NewTransportRouter returns a router pre-registered with HTTP(S) and
// anonymous FTP transports. ftps:// and sftp:// are intentionally absent:
// both require credentials, which conflicts with the "no authentication
// with mirrors" non-goal; plain ftp:// is served anonymously.
func NewTransportRouter() *TransportRouter {
	r := &TransportRouter{routes: make(map[string]TransportFactory)}
	httpFactory := func() (MirrorTransport, error) { return newHTTPTransport(), nil }
	r.routes["http"] = httpFactory
	r.routes["https"] = httpFactory
	r.routes["ftp"] = func() (MirrorTransport, error) { return newFTPTransport(), nil }
	return r
}

// Register adds or replaces the factory for scheme.
func (r *TransportRouter) Register(scheme string, factory TransportFactory) {
	r.routes[strings.ToLower(scheme)] = factory
}

// For resolves the transport for rawURL's scheme.
func (r *TransportRouter) For(rawURL string) (MirrorTransport, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	factory, ok := r.routes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return factory()
}
