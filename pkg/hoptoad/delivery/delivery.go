// Package delivery uploads buffered notices to the collector.
//
// A flush walks the buffer once. Every file that gets a response from the
// collector is removed, whatever the status code. A file whose upload fails
// at the transport level stays in the buffer for the next flush. There is no
// retry or backoff inside a flush and no background schedule: callers decide
// when to flush.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/buffer"
)

const (
	// DefaultEndpoint is the Hoptoad v2 notice endpoint.
	DefaultEndpoint = "http://hoptoadapp.com/notifier_api/v2/notices"

	// ContentType is sent with every upload.
	ContentType = "text/xml; charset=utf-8"

	// DefaultTimeout bounds one upload, connect through response headers.
	DefaultTimeout = 10 * time.Second
)

// ErrUnreadable is returned by Upload when the buffered file cannot be
// opened, typically because a concurrent flush already delivered it.
var ErrUnreadable = errors.New("delivery: buffered file unreadable")

// Store is the part of the buffer the engine needs.
// *buffer.Buffer implements Store.
type Store interface {
	ListPending() ([]buffer.Handle, error)
	Open(h buffer.Handle) (io.ReadCloser, error)
	Remove(h buffer.Handle) error
}

// Result summarizes one flush.
type Result struct {
	// Attempted is the number of files found pending.
	Attempted int

	// Delivered is the number of files that got a response and were removed.
	Delivered int

	// Retained is the number of files kept after a transport error, or
	// whose removal failed.
	Retained int

	// Skipped is the number of files that could not be opened.
	Skipped int
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for uploads.
// The client's Timeout is left untouched; WithTimeout bounds each request
// through its context instead.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout bounds each upload. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithLogger sets a logger for delivery outcomes.
// If not set, messages are silently dropped.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine uploads buffered notices. Engine is safe for concurrent use;
// concurrent flushes may upload the same file twice but never lose one.
type Engine struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   *log.Logger
}

// New creates an Engine posting to endpoint. An empty endpoint selects
// DefaultEndpoint.
func New(endpoint string, opts ...Option) *Engine {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	e := &Engine{
		endpoint: endpoint,
		client:   http.DefaultClient,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Endpoint returns the collector URL.
func (e *Engine) Endpoint() string {
	return e.endpoint
}

// Flush attempts to deliver every pending file once. Per-file failures are
// logged and counted in the Result; the error is non-nil only when the
// pending files could not be enumerated or ctx was cancelled.
func (e *Engine) Flush(ctx context.Context, store Store) (Result, error) {
	var res Result

	pending, err := store.ListPending()
	if err != nil {
		return res, fmt.Errorf("delivery: list pending: %w", err)
	}
	res.Attempted = len(pending)

	for _, h := range pending {
		if err := ctx.Err(); err != nil {
			res.Retained += res.Attempted - res.Delivered - res.Retained - res.Skipped
			return res, err
		}

		switch err := e.Upload(ctx, store, h); {
		case err == nil:
			res.Delivered++
		case errors.Is(err, ErrUnreadable):
			res.Skipped++
			e.logf("hoptoad: skipping %s: %v", h, err)
		default:
			res.Retained++
			e.logf("hoptoad: failed to deliver %s, will retry on next flush: %v", h, err)
		}
	}

	return res, nil
}

// Upload posts one buffered file and removes it once the collector
// responded. The response status is not inspected.
func (e *Engine) Upload(ctx context.Context, store Store, h buffer.Handle) error {
	body, err := store.Open(h)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	// The transport closes body; this covers the paths where it never
	// reaches the transport.
	defer body.Close()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	if sized, ok := body.(interface{ Size() int64 }); ok {
		req.ContentLength = sized.Size()
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", e.endpoint, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logf("hoptoad: collector answered %s for %s, removing anyway", resp.Status, h)
	}

	if err := store.Remove(h); err != nil {
		return fmt.Errorf("remove delivered file: %w", err)
	}
	return nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
