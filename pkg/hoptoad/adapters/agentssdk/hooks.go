// hooks.go implements RunHooks for capturing operation context for enrichment.
// Failures are detected by WrappedRunner; hooks only describe them.

package agentssdk

import (
	"context"
	"log"
	"time"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// HookAdapter implements agents.RunHooks to capture operation context.
// It delegates to an inner RunHooks and records enrichment for correlation.
type HookAdapter struct {
	store  EnrichmentStore
	inner  agents.RunHooks
	logger *log.Logger
	now    func() time.Time
}

// NewHookAdapter wraps an existing RunHooks and captures operation context.
//
// The inner hooks (if non-nil) are called for all hook methods; only their
// errors are returned. The logger can be nil.
func NewHookAdapter(store EnrichmentStore, inner agents.RunHooks, logger *log.Logger) agents.RunHooks {
	return &HookAdapter{
		store:  store,
		inner:  inner,
		logger: logger,
		now:    timeNow,
	}
}

// OnAgentStart records the agent name.
func (h *HookAdapter) OnAgentStart(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent) error {
	if agent != nil {
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = agent.Name()
		})
	}

	if h.inner != nil {
		return h.inner.OnAgentStart(ctx, runCtx, agent)
	}
	return nil
}

// OnAgentEnd delegates to inner hooks.
func (h *HookAdapter) OnAgentEnd(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent, result agents.RunResult) error {
	if h.inner != nil {
		return h.inner.OnAgentEnd(ctx, runCtx, agent, result)
	}
	return nil
}

// OnHandoff records the handoff target.
func (h *HookAdapter) OnHandoff(ctx context.Context, runCtx *agents.RunContext, from *agents.Agent, to *agents.Agent) error {
	if to != nil {
		now := h.now()
		h.update(ctx, func(e *Enrichment) {
			rec := OperationRecord{Kind: "handoff", Name: to.Name(), Started: now}
			if from != nil {
				rec.AgentName = from.Name()
			}
			e.AgentName = to.Name()
			e.Operation = "handoff"
			e.History = appendHistory(e.History, rec)
		})
	}

	if h.inner != nil {
		return h.inner.OnHandoff(ctx, runCtx, from, to)
	}
	return nil
}

// OnToolStart records the tool call.
func (h *HookAdapter) OnToolStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, call llmsdk.ToolCall) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = "tool"
		e.ToolName = tool.Name
		e.ToolCallID = call.ID
		e.History = appendHistory(e.History, OperationRecord{
			Kind: "tool", Name: tool.Name, AgentName: e.AgentName, Started: now,
		})
	})

	if h.inner != nil {
		return h.inner.OnToolStart(ctx, runCtx, agent, tool, call)
	}
	return nil
}

// OnToolEnd completes the tool call record.
func (h *HookAdapter) OnToolEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, output string) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		finishLast(e.History, "tool", now, false)
	})

	if h.inner != nil {
		return h.inner.OnToolEnd(ctx, runCtx, agent, tool, output)
	}
	return nil
}

// OnLLMStart records the model call.
func (h *HookAdapter) OnLLMStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, req llmsdk.Request) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = "llm"
		e.Model = req.Model
		e.LLM = buildLLMSnapshot(req)
		e.History = appendHistory(e.History, OperationRecord{
			Kind: "llm", Name: req.Model, AgentName: e.AgentName, Started: now,
		})
	})

	if h.inner != nil {
		return h.inner.OnLLMStart(ctx, runCtx, agent, req)
	}
	return nil
}

// OnLLMEnd completes the model call record.
func (h *HookAdapter) OnLLMEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, resp llmsdk.Response) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		finishLast(e.History, "llm", now, false)
		e.LLM = e.LLM.withResponse(resp)
	})

	if h.inner != nil {
		return h.inner.OnLLMEnd(ctx, runCtx, agent, resp)
	}
	return nil
}

// update applies fn to the enrichment of the run in ctx, if any.
func (h *HookAdapter) update(ctx context.Context, fn func(e *Enrichment)) {
	runID, ok := hoptoad.RunIDFromContext(ctx)
	if !ok {
		if h.logger != nil {
			h.logger.Printf("hoptoad: hook called outside an instrumented run")
		}
		return
	}
	h.store.Update(runID, fn)
}
