// Package stderr provides a sink that prints reports in human-readable
// form. Useful during development, usually as a notifier mirror.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// Option configures the stderr sink.
type Option func(*sinkConfig)

type sinkConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose includes the backtrace of every cause.
func WithVerbose() Option {
	return func(c *sinkConfig) {
		c.verbose = true
	}
}

// WithWriter sends output to w instead of os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(c *sinkConfig) {
		c.out = w
	}
}

type stderrSink struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewStderrSink creates a sink that writes to stderr.
func NewStderrSink(opts ...Option) hoptoad.Sink {
	cfg := &sinkConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSink{
		out:     cfg.out,
		verbose: cfg.verbose,
	}
}

// Write formats the report. One report is written atomically with respect
// to concurrent writers.
func (s *stderrSink) Write(ctx context.Context, report hoptoad.Report) error {
	var b strings.Builder

	// Format: [HOPTOAD] <timestamp> <error_type> in <component>#<action> (<url>)
	timestamp := report.CapturedAt.Format("2006-01-02T15:04:05Z07:00")
	parts := []string{fmt.Sprintf("[HOPTOAD] %s %s", timestamp, report.ErrorType)}
	if req := report.Request; req.Component != "" {
		where := req.Component
		if req.Action != "" {
			where += "#" + req.Action
		}
		parts = append(parts, "in "+where)
	}
	if report.Request.URL != "" {
		parts = append(parts, fmt.Sprintf("(%s)", report.Request.URL))
	}
	b.WriteString(strings.Join(parts, " "))
	b.WriteByte('\n')

	if report.Message != "" {
		fmt.Fprintf(&b, "        Message: %s\n", report.Message)
	}
	if report.ID != "" {
		fmt.Fprintf(&b, "        Report: %s\n", report.ID)
	}
	fmt.Fprintf(&b, "        Fingerprint: %s\n", hoptoad.Fingerprint(report))
	if report.ContextID != nil {
		fmt.Fprintf(&b, "        Context: %d\n", *report.ContextID)
	}
	if device := report.Environment[hoptoad.TagDevice]; device != "" {
		fmt.Fprintf(&b, "        Device: %s (%s)\n", device, report.Environment[hoptoad.TagPlatformVersion])
	}

	if s.verbose && len(report.CausalChain) > 0 {
		b.WriteString("        Backtrace:\n")
		for _, cause := range report.CausalChain {
			for _, f := range cause.Frames {
				line := "?"
				if f.Line != nil {
					line = fmt.Sprint(*f.Line)
				}
				fmt.Fprintf(&b, "          %s (%s:%s)\n", f.Symbol, f.File, line)
			}
			if cause.CausedBy != "" {
				fmt.Fprintf(&b, "          caused by: %s\n", cause.CausedBy)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, b.String())
	return err
}

// Flush is a no-op for stderr sink.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for stderr sink.
func (s *stderrSink) Close() error {
	return nil
}
