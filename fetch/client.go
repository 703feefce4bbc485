// Package fetch downloads large artifacts over HTTP with range-resume,
// bounded retries, and optional checksum verification.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrRangeNotSupported = errors.New("fetch: server does not support range requests")
	ErrNotFound          = errors.New("fetch: resource not found")
	ErrForbidden         = errors.New("fetch: access forbidden")
	ErrServerError       = errors.New("fetch: server error")
)

// Options configures the HTTP client and the retry loop.
type Options struct {
	// ConnectTimeout bounds the dial phase of each attempt. The transfer
	// phase itself is unbounded: multi-hour downloads are expected.
	// Default: 30s.
	ConnectTimeout time.Duration

	// MaxAttempts is the maximum number of physical attempts per source.
	// Default: 6.
	MaxAttempts int

	// BackoffBase and BackoffCap parameterize the exponential backoff
	// between attempts, in seconds. Defaults: 2 and 60.
	BackoffBase float64
	BackoffCap  float64

	// Jitter is the ceiling of the random component added to each backoff
	// sleep. Default: 600ms. A negative value disables jitter, making the
	// retry schedule fully deterministic.
	Jitter time.Duration

	// UserAgent is sent with every request. Default: "lawl/1.0".
	UserAgent string

	// Logger for per-attempt progress. Default: slog.Default().
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 6
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 60
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	} else if o.Jitter == 0 {
		o.Jitter = 600 * time.Millisecond
	}
	if o.UserAgent == "" {
		o.UserAgent = "lawl/1.0"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client is an HTTP client tuned for large file downloads.
type Client struct {
	hc    *http.Client
	opts  Options
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a Client with the given options.
func NewClient(opts Options) *Client {
	opts.defaults()
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: opts.ConnectTimeout,
		DisableCompression:    true, // raw bytes, offsets must match the file
	}
	return &Client{
		hc: &http.Client{
			Transport: transport,
			// No overall timeout: the data phase is bounded only by input size.
		},
		opts: opts,
	}
}

// get issues a GET, requesting bytes from offset onward when offset > 0.
func (c *Client) get(ctx context.Context, url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return c.hc.Do(req)
}

// checkStatus maps non-success status codes to sentinel errors. Server
// errors (5xx) are transient; 4xx are not.
func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	default:
		return fmt.Errorf("fetch: unexpected status code: %d", code)
	}
}
