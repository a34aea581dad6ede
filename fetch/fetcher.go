// Package fetch downloads package archives and unpacks them into per-package
// sandbox directories. The download, decompression, and unpack stages run as
// one connected stream: a slow stage throttles the transfer, and a failure in
// any stage aborts the whole pipeline.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/dnscache"
)

var (
	// ErrDownload covers transport failures and non-2xx archive responses.
	ErrDownload = errors.New("archive download failed")
	// ErrDecompress covers malformed compressed streams.
	ErrDecompress = errors.New("archive decompression failed")
	// ErrExtract covers malformed archive entries.
	ErrExtract = errors.New("archive extraction failed")
)

// DefaultTimeout bounds one FetchAndExtract call end to end. When it expires
// the in-flight transfer is aborted.
const DefaultTimeout = 30 * time.Second

// Artifact contains the response from fetching an upstream archive.
type Artifact struct {
	Body        io.ReadCloser
	Size        int64 // -1 if unknown
	ContentType string
}

// Fetcher downloads archives and extracts them under a sandbox directory.
// Failures surface on first occurrence; there are no retries.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	sandboxes *sandboxes
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithTimeout sets the overall deadline for one fetch-and-extract operation.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithSandboxDir sets the parent directory for extraction sandboxes.
func WithSandboxDir(dir string) Option {
	return func(f *Fetcher) {
		f.sandboxes.base = dir
	}
}

// NewFetcher creates a new Fetcher with the given options.
func NewFetcher(opts ...Option) *Fetcher {
	// Create DNS cache with 5 minute refresh interval
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	f := &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP")
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent: "pkgcode/1.0",
		timeout:   DefaultTimeout,
		sandboxes: newSandboxes(""),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAndExtract downloads the archive at archiveURL and unpacks it into the
// sandbox directory for packageName, stripping one leading path segment. Any
// previous extraction for the same name is removed first. The returned path
// is the sandbox root holding exactly one package's unpacked contents.
func (f *Fetcher) FetchAndExtract(ctx context.Context, archiveURL, packageName string) (string, error) {
	// Lease the sandbox so two concurrent requests for the same package
	// name cannot observe or delete each other's in-progress extraction.
	release := f.sandboxes.acquire(packageName)
	defer release()

	root, err := f.sandboxes.prepare(packageName)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	artifact, err := f.Fetch(ctx, archiveURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = artifact.Body.Close() }()

	if err := extractTarGz(root, artifact.Body); err != nil {
		return "", err
	}
	return root, nil
}

// SandboxPath returns the sandbox directory that FetchAndExtract would use
// for packageName, without touching the filesystem.
func (f *Fetcher) SandboxPath(packageName string) string {
	return f.sandboxes.path(packageName)
}

// Fetch opens a streaming GET to the archive URL. The caller must close the
// returned Artifact.Body when done.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d from %s: %s",
			ErrDownload, resp.StatusCode, url, string(body))
	}

	size := int64(-1)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			size = n
		}
	}

	return &Artifact{
		Body:        resp.Body,
		Size:        size,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
