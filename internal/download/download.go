// Package download fetches release artifacts over HTTP and extracts them.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 3

// ErrHTTPStatus is wrapped by errors for unexpected HTTP status codes.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// StatusError reports an unexpected HTTP response status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// Opt configures a Client.
type Opt func(*Client)

// Client downloads files with retries.
type Client struct {
	http       *http.Client
	logger     hclog.Logger
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Opt {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithLogger sets the logger for download diagnostics.
func WithLogger(l hclog.Logger) Opt {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n uint64) Opt {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// WithBackOff overrides the retry schedule.
func WithBackOff(fn func() backoff.BackOff) Opt {
	return func(cl *Client) {
		cl.newBackOff = fn
	}
}

// New creates a Client.
func New(opts ...Opt) *Client {
	c := &Client{
		http:       http.DefaultClient,
		logger:     hclog.NewNullLogger(),
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// File downloads url into a new file in dir and returns its path.
// The caller owns the file.
func (c *Client) File(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	c.logger.Debug("downloading", "url", url, "path", path)
	err = c.get(ctx, url, func(body io.Reader) error {
		if err := f.Truncate(0); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := io.Copy(f, body)
		return err
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	return path, nil
}

// JSON fetches url and decodes the response body into v.
func (c *Client) JSON(ctx context.Context, url string, v any) error {
	c.logger.Debug("fetching", "url", url)
	err := c.get(ctx, url, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(v)
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	return nil
}

// get performs a GET with retries and hands the body of a 200 response to read.
// Client errors other than 408 and 429 are not retried.
func (c *Client) get(ctx context.Context, url string, read func(io.Reader) error) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			serr := &StatusError{URL: url, StatusCode: resp.StatusCode}
			if retryable(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}
		return read(resp.Body)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying", "url", url, "error", err, "wait", wait)
	})
}

func retryable(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
