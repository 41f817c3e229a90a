// collector.go provides the central Collector interface and default implementation.

package hoptoad

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Collector records reports to a configured sink.
type Collector interface {
	// Record captures a report. Blocks until persisted (synchronous).
	// Applies scrubbing before delegating to the sink.
	Record(ctx context.Context, report Report) error

	// Flush pushes recorded reports further along the sink chain.
	Flush(ctx context.Context) error

	// Close releases resources held by the collector.
	Close() error
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

type collectorConfig struct {
	sink     Sink
	scrubber *Scrubber
}

// WithSink sets the sink for the collector.
func WithSink(sink Sink) CollectorOption {
	return func(c *collectorConfig) {
		c.sink = sink
	}
}

// WithScrubber configures the collector with a custom scrubber configuration.
func WithScrubber(cfg ScrubberConfig) CollectorOption {
	return func(c *collectorConfig) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() CollectorOption {
	return func(c *collectorConfig) {
		c.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// defaultCollector is the standard Collector implementation.
type defaultCollector struct {
	sink     Sink
	scrubber *Scrubber
}

// NewCollector creates a new Collector with the given options.
func NewCollector(opts ...CollectorOption) Collector {
	cfg := &collectorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Default to a noop sink if none provided
	if cfg.sink == nil {
		cfg.sink = noopSink{}
	}

	return &defaultCollector{
		sink:     cfg.sink,
		scrubber: cfg.scrubber,
	}
}

// Record stamps, scrubs and writes a report.
func (c *defaultCollector) Record(ctx context.Context, report Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CapturedAt.IsZero() {
		report.CapturedAt = time.Now()
	}

	if c.scrubber != nil {
		report = c.scrubber.ScrubReport(report)
	}

	return c.sink.Write(ctx, report)
}

// Flush delegates to the sink.
func (c *defaultCollector) Flush(ctx context.Context) error {
	return c.sink.Flush(ctx)
}

// Close delegates to the sink.
func (c *defaultCollector) Close() error {
	return c.sink.Close()
}
