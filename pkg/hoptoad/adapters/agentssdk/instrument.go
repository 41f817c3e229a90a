// instrument.go provides the Instrument function for convenient runner setup.

package agentssdk

import (
	"log"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// WrapOption configures a WrappedRunner.
type WrapOption func(*WrappedRunner)

// WithLogger sets the logger for the wrapper and its hooks.
func WithLogger(logger *log.Logger) WrapOption {
	return func(w *WrappedRunner) {
		w.logger = logger
	}
}

// WithEnrichmentStore sets the store used to correlate hook data with
// failures captured at the runner boundary.
func WithEnrichmentStore(store EnrichmentStore) WrapOption {
	return func(w *WrappedRunner) {
		if store != nil {
			w.enrichments = store
		}
	}
}

// Instrument wraps a Runner with error and panic reporting through n.
// A nil n reports through the registered default notifier.
//
// Example:
//
//	n := hoptoad.MustRegister(dir, apiKey)
//	runner := agents.NewRunner(client)
//	wrapped := agentssdk.Instrument(runner, n)
//	result, err := wrapped.Run(ctx, agent, input, session, nil)
func Instrument(baseRunner Runner, n *hoptoad.Notifier, opts ...WrapOption) *WrappedRunner {
	wrapper := &WrappedRunner{
		inner:       baseRunner,
		notifier:    n,
		enrichments: NewEnrichmentStore(),
	}

	for _, opt := range opts {
		opt(wrapper)
	}

	return wrapper
}
