// Package fetch downloads remote boundary and dataset files over HTTP or
// FTP. Rural co-ops still publish field boundaries on plain FTP servers, so
// both schemes are supported behind one entry point.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures remote fetches.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64 // response size cap; 0 means the default
}

const defaultMaxBytes = 64 << 20

// Fetcher retrieves remote files.
type Fetcher struct {
	opts   Options
	client *http.Client
}

// New creates a Fetcher with the given options.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "soilgrid/1.0"
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &Fetcher{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Fetch downloads the file at rawURL, dispatching on the URL scheme.
// Supported schemes: http, https, ftp.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "ftp":
		return f.fetchFTP(ctx, u)
	default:
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: build request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: GET %s", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("fetch: GET %s returned %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read %s", rawURL)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, eris.Errorf("fetch: %s exceeds %d byte limit", rawURL, f.opts.MaxBytes)
	}

	zap.L().Debug("fetched over http", zap.String("url", rawURL), zap.Int("bytes", len(data)))
	return data, nil
}
