// request.go maps run enrichment onto report request details and tags.

package agentssdk

import (
	"context"
	"errors"
	"strings"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// Tag keys added to reports of instrumented runs.
const (
	TagRunID      = "Agent Run"
	TagAgentName  = "Agent Name"
	TagModel      = "Agent Model"
	TagToolCallID = "Agent Tool Call"
	TagHistory    = "Agent Operations"
	TagLastTiming = "Agent Last Operation"
	TagErrorClass = "Agent Error Class"
	TagLLMRequest = "Agent LLM Request"
	TagLLMResult  = "Agent LLM Response"
)

// requestFor describes the failing run as a notice request: the agent is the
// component and the operation in progress is the action.
func requestFor(runID string, e Enrichment, err error) hoptoad.Request {
	req := hoptoad.Request{
		URL:       "agents://run/" + runID,
		Component: e.AgentName,
	}
	switch e.Operation {
	case "tool":
		req.Action = "tool:" + e.ToolName
	case "llm":
		req.Action = "llm:" + e.Model
	case "handoff":
		req.Action = "handoff"
	default:
		req.Action = classifyError(err)
	}
	return req
}

// tagsFor returns the mirror-only tags of a failing run.
func tagsFor(runID string, e Enrichment, err error) map[string]string {
	tags := map[string]string{
		TagRunID:      runID,
		TagErrorClass: classifyError(err),
	}
	if e.AgentName != "" {
		tags[TagAgentName] = e.AgentName
	}
	if e.Model != "" {
		tags[TagModel] = e.Model
	}
	if e.ToolCallID != "" {
		tags[TagToolCallID] = e.ToolCallID
	}
	if e.LLM != nil {
		tags[TagLLMRequest] = e.LLM.requestSummary()
		if resp := e.LLM.responseSummary(); resp != "" {
			tags[TagLLMResult] = resp
		}
	}
	if len(e.History) > 0 {
		tags[TagHistory] = formatHistory(e.History)
		if last := e.History[len(e.History)-1]; last.Duration > 0 {
			tags[TagLastTiming] = last.String() + " " + formatDuration(last.Duration)
		}
	}
	return tags
}

// classifyError names the kind of failure. err may be nil for panics.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case containsGuardrailPattern(err.Error()):
		return "guardrail"
	default:
		return "error"
	}
}

var guardrailPatterns = []string{
	"guardrail",
	"content policy",
	"safety filter",
	"blocked by policy",
}

// containsGuardrailPattern reports whether msg looks like a guardrail
// violation. This is a message heuristic.
func containsGuardrailPattern(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range guardrailPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
