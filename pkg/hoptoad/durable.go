// durable.go provides the sinks behind a Notifier: the durable notice sink,
// the disabled-storage sink and the mirror tee.

package hoptoad

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/buffer"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/delivery"
)

// durableSink encodes reports as notices, persists them to the buffer and
// delivers buffered notices on Flush.
type durableSink struct {
	buf      *buffer.Buffer
	engine   *delivery.Engine
	identity Identity
	prefix   string
	logger   *log.Logger
	closed   atomic.Bool
}

func (s *durableSink) Write(ctx context.Context, report Report) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := EncodeNotice(report, s.identity)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.ID, err)
	}
	if _, err := s.buf.Persist(s.prefix, data); err != nil {
		return err
	}
	return nil
}

func (s *durableSink) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	res, err := s.engine.Flush(ctx, s.buf)
	if err != nil {
		return err
	}
	if res.Attempted > 0 && s.logger != nil {
		s.logger.Printf("hoptoad: flushed %d notices (%d delivered, %d retained, %d skipped)",
			res.Attempted, res.Delivered, res.Retained, res.Skipped)
	}
	return nil
}

func (s *durableSink) Close() error {
	s.closed.Store(true)
	return nil
}

// noopSink is used when storage is disabled, and as the collector default.
type noopSink struct{}

func (noopSink) Write(ctx context.Context, report Report) error { return nil }
func (noopSink) Flush(ctx context.Context) error                { return nil }
func (noopSink) Close() error                                   { return nil }

// mirrorFlushTimeout bounds how long Flush waits on the mirror.
const mirrorFlushTimeout = 5 * time.Second

// teeSink writes to a primary sink and a mirror. Only the primary's errors
// are returned; mirror errors are logged.
type teeSink struct {
	primary Sink
	mirror  Sink
	logger  *log.Logger
	timeout time.Duration
}

func (s *teeSink) Write(ctx context.Context, report Report) error {
	err := s.primary.Write(ctx, report)
	if merr := s.mirror.Write(ctx, report); merr != nil {
		s.logf("hoptoad: mirror write failed for report %s: %v", report.ID, merr)
	}
	return err
}

func (s *teeSink) Flush(ctx context.Context) error {
	err := s.primary.Flush(ctx)
	timeout := s.timeout
	if timeout <= 0 {
		timeout = mirrorFlushTimeout
	}
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if merr := s.mirror.Flush(mctx); merr != nil {
		s.logf("hoptoad: mirror flush failed: %v", merr)
	}
	return err
}

func (s *teeSink) Close() error {
	return errors.Join(s.primary.Close(), s.mirror.Close())
}

func (s *teeSink) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
