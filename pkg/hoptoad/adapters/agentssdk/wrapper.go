// wrapper.go implements WrappedRunner, which reports errors and panics of
// agent runs through a hoptoad Notifier.

package agentssdk

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// Runner is the part of *agents.Runner that WrappedRunner instruments.
type Runner interface {
	Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error)
	RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error)
	RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error)
}

var _ Runner = (*agents.Runner)(nil)

// WrappedRunner wraps a Runner to report errors and panics. Hooks only add
// enrichment; the runner boundary is where failures are detected.
type WrappedRunner struct {
	inner       Runner
	notifier    *hoptoad.Notifier
	enrichments EnrichmentStore
	logger      *log.Logger
}

// Run executes the agent, reporting a returned error or a panic. Panics are
// re-raised after they are reported.
func (w *WrappedRunner) Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error) {
	runID := uuid.NewString()
	ctx = hoptoad.WithRunID(ctx, runID)
	defer w.enrichments.Delete(runID)

	ctx = w.withContextID(ctx, session)
	defer w.capturePanic(ctx, runID)

	result, err := w.inner.Run(ctx, agent, input, session, w.wrapRunConfig(cfg))
	if err != nil {
		w.captureError(ctx, runID, err)
	}
	return result, err
}

// RunOnce executes a single turn of the agent, reporting errors and panics.
func (w *WrappedRunner) RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error) {
	runID := uuid.NewString()
	ctx = hoptoad.WithRunID(ctx, runID)
	defer w.enrichments.Delete(runID)

	defer w.capturePanic(ctx, runID)

	result, err := w.inner.RunOnce(ctx, agent, input, w.wrapRunConfig(cfg))
	if err != nil {
		w.captureError(ctx, runID, err)
	}
	return result, err
}

// RunStream starts a streaming run. Only failures to start the stream are
// reported; enrichment for a started stream lives until the store is
// cleared by the caller.
func (w *WrappedRunner) RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error) {
	runID := uuid.NewString()
	ctx = hoptoad.WithRunID(ctx, runID)

	ctx = w.withContextID(ctx, session)
	defer w.capturePanic(ctx, runID)

	stream, err := w.inner.RunStream(ctx, agent, input, session, w.wrapRunConfig(cfg))
	if err != nil {
		w.captureError(ctx, runID, err)
		w.enrichments.Delete(runID)
	}
	return stream, err
}

// Inner returns the underlying Runner for advanced usage.
func (w *WrappedRunner) Inner() Runner {
	return w.inner
}

// withContextID links reports to the session's cxdb context when the
// session can name one; otherwise a context ID already on ctx is kept.
func (w *WrappedRunner) withContextID(ctx context.Context, session any) context.Context {
	if provider, ok := session.(hoptoad.ContextIDProvider); ok {
		if id, err := provider.ContextID(ctx); err == nil {
			return hoptoad.WithContextID(ctx, id)
		}
	}
	return ctx
}

// wrapRunConfig clones cfg and wraps its hooks with a HookAdapter.
func (w *WrappedRunner) wrapRunConfig(cfg *agents.RunConfig) *agents.RunConfig {
	var cloned agents.RunConfig
	if cfg != nil {
		cloned = *cfg
	}
	cloned.Hooks = NewHookAdapter(w.enrichments, cloned.Hooks, w.logger)
	return &cloned
}

func (w *WrappedRunner) captureError(ctx context.Context, runID string, err error) {
	n := w.reporter()
	if n == nil {
		return
	}
	n.Notify(w.reportContext(ctx, runID, err), err)
}

// capturePanic recovers a panic, reports it and re-panics.
func (w *WrappedRunner) capturePanic(ctx context.Context, runID string) {
	r := recover()
	if r == nil {
		return
	}
	if n := w.reporter(); n != nil {
		n.NotifyPanic(w.reportContext(ctx, runID, nil), r)
	}
	panic(r)
}

func (w *WrappedRunner) reportContext(ctx context.Context, runID string, err error) context.Context {
	e, _ := w.enrichments.Get(runID)
	finishLast(e.History, e.Operation, timeNow(), true)
	ctx = hoptoad.WithRequest(ctx, requestFor(runID, e, err))
	return hoptoad.WithTags(ctx, tagsFor(runID, e, err))
}

// reporter returns the configured notifier or the registered default.
func (w *WrappedRunner) reporter() *hoptoad.Notifier {
	if w.notifier != nil {
		return w.notifier
	}
	return hoptoad.Default()
}
