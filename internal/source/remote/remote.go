// Package remote fetches remote includes over HTTP(S).
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/source"
	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds a single remote include fetch.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxSize bounds the size of a remote include.
	DefaultMaxSize = 1 << 20
)

// Reader fetches remote includes with a resty client.
type Reader struct {
	client  *resty.Client
	maxSize int
}

// Option configures a Reader.
type Option func(*Reader)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) { r.client.SetTimeout(d) }
}

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(r *Reader) { r.maxSize = n }
}

// New returns a Reader.
func New(opts ...Option) *Reader {
	r := &Reader{
		client:  resty.New().SetTimeout(DefaultTimeout),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client.SetResponseBodyLimit(int64(r.maxSize))
	return r
}

// Close releases the underlying client.
func (r *Reader) Close() error {
	return r.client.Close()
}

// Read implements source.Reader for remote requests. There are no retries.
func (r *Reader) Read(ctx context.Context, req source.Request) ([]byte, error) {
	if req.Kind != source.KindRemote {
		return nil, fmt.Errorf("remote reader cannot read %s includes", req.Kind)
	}
	logger := ctxlog.FromContext(ctx).With("url", req.URL)
	logger.Debug("Fetching remote include.")

	resp, err := r.client.R().SetContext(ctx).Get(req.URL)
	if errors.Is(err, resty.ErrReadExceedsThresholdLimit) {
		return nil, r.tooLarge(req.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", req.URL, source.ErrNotFound)
	case resp.IsError():
		return nil, fmt.Errorf("fetching %s: unexpected status %d", req.URL, resp.StatusCode())
	}

	// Bytes keeps the body verbatim; String would trim it.
	body := resp.Bytes()
	if len(body) > r.maxSize {
		return nil, r.tooLarge(req.URL)
	}
	logger.Debug("Fetched remote include.", "bytes", len(body))
	return body, nil
}

func (r *Reader) tooLarge(url string) error {
	return fmt.Errorf("fetching %s: response exceeds %d bytes", url, r.maxSize)
}
