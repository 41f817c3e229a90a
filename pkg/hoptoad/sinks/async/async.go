// Package async provides a sink wrapper with a bounded queue for mirrors
// that are too slow for the capture path. Reports are queued and written in
// the background; the oldest report is dropped when the queue is full.
//
// Wrap mirrors only. The durable sink must stay synchronous so a report is
// on disk before capture returns.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink is closed")

// AsyncSinkOption configures the async sink.
type AsyncSinkOption func(*asyncSinkConfig)

type asyncSinkConfig struct {
	queueSize    int
	pollInterval time.Duration
	onDropped    func(count int)
}

// WithQueueSize sets the maximum number of queued reports (default: 256).
func WithQueueSize(size int) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithPollInterval sets how often Flush checks for an empty queue
// (default: 10ms).
func WithPollInterval(d time.Duration) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithOnDropped sets a callback invoked when reports are dropped due to
// queue overflow.
func WithOnDropped(fn func(count int)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onDropped = fn
	}
}

type asyncSink struct {
	inner        hoptoad.Sink
	queue        chan hoptoad.Report
	pollInterval time.Duration
	onDropped    func(count int)

	// inflight counts reports queued or being written.
	inflight atomic.Int64

	// mu guards closed and serializes sends against closing the queue.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink wraps a sink with a bounded queue for async writes.
// Write returns immediately; errors of the inner sink are discarded.
func NewAsyncSink(inner hoptoad.Sink, opts ...AsyncSinkOption) hoptoad.Sink {
	cfg := &asyncSinkConfig{
		queueSize:    256,
		pollInterval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &asyncSink{
		inner:        inner,
		queue:        make(chan hoptoad.Report, cfg.queueSize),
		pollInterval: cfg.pollInterval,
		onDropped:    cfg.onDropped,
	}

	s.wg.Add(1)
	go s.processLoop()

	return s
}

// processLoop writes queued reports until the queue is closed and drained.
func (s *asyncSink) processLoop() {
	defer s.wg.Done()
	for report := range s.queue {
		s.write(report)
	}
}

func (s *asyncSink) write(report hoptoad.Report) {
	defer s.inflight.Add(-1)
	defer func() {
		// A panicking mirror must not stop the loop.
		_ = recover()
	}()
	_ = s.inner.Write(context.Background(), report)
}

// Write enqueues a copy of report. If the queue is full the oldest report
// is dropped.
func (s *asyncSink) Write(ctx context.Context, report hoptoad.Report) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	s.inflight.Add(1)
	report = report.Clone()
	select {
	case s.queue <- report:
		return nil
	default:
	}

	s.dropOldestAndEnqueue(report)
	return nil
}

// dropOldestAndEnqueue drops the oldest report and enqueues the new one.
// Called with s.mu read-locked.
func (s *asyncSink) dropOldestAndEnqueue(report hoptoad.Report) {
	select {
	case <-s.queue:
		s.dropped()
	default:
		// The processor emptied a slot.
	}

	select {
	case s.queue <- report:
	default:
		s.dropped()
	}
}

func (s *asyncSink) dropped() {
	s.inflight.Add(-1)
	if s.onDropped != nil {
		s.onDropped(1)
	}
}

// Flush blocks until every queued report has been written, then flushes
// the inner sink.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for s.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close drains the queue and closes the inner sink.
func (s *asyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.inner.Close()
}
