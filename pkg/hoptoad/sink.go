// sink.go defines the Sink interface for report destinations.

package hoptoad

import "context"

// Sink is the destination for reports.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write persists a report. Called after scrubbing.
	// Implementations should be idempotent when possible.
	Write(ctx context.Context, report Report) error

	// Flush pushes written reports further along, e.g. delivers buffered
	// notices to the collector.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	Close() error
}
