// llm_snapshot.go summarizes the last model call of a run without keeping
// any prompt or completion text.

package agentssdk

import (
	"fmt"
	"strings"

	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

// LLMSnapshot is the metadata of one model call.
type LLMSnapshot struct {
	Model        string
	Provider     string
	MessageCount int
	ToolNames    []string

	// Response fields; empty until the call completes.
	FinishReason  string
	TotalTokens   int
	ToolCallNames []string
}

// buildLLMSnapshot extracts metadata from an LLM request.
// Message content is never copied.
func buildLLMSnapshot(req llmsdk.Request) *LLMSnapshot {
	s := &LLMSnapshot{
		Model:        req.Model,
		Provider:     string(req.Provider),
		MessageCount: len(req.Messages),
	}
	if len(req.Tools) > 0 {
		s.ToolNames = make([]string, len(req.Tools))
		for i, tool := range req.Tools {
			s.ToolNames[i] = tool.Name
		}
	}
	return s
}

// withResponse returns a copy of s completed with response metadata.
func (s *LLMSnapshot) withResponse(resp llmsdk.Response) *LLMSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.FinishReason = string(resp.FinishReason)
	out.TotalTokens = int(resp.Usage.TotalTokens)
	out.ToolCallNames = nil
	for _, tc := range resp.ToolCalls {
		out.ToolCallNames = append(out.ToolCallNames, tc.Name)
	}
	return &out
}

// requestSummary renders the request side, e.g.
// "openai/gpt-4o messages=12 tools=[search,fetch]".
func (s *LLMSnapshot) requestSummary() string {
	model := s.Model
	if s.Provider != "" {
		model = s.Provider + "/" + model
	}
	out := fmt.Sprintf("%s messages=%d", model, s.MessageCount)
	if len(s.ToolNames) > 0 {
		out += " tools=[" + strings.Join(s.ToolNames, ",") + "]"
	}
	return out
}

// responseSummary renders the response side, or "" while the call is
// in progress.
func (s *LLMSnapshot) responseSummary() string {
	if s.FinishReason == "" {
		return ""
	}
	out := fmt.Sprintf("finish=%s tokens=%d", s.FinishReason, s.TotalTokens)
	if len(s.ToolCallNames) > 0 {
		out += " calls=[" + strings.Join(s.ToolCallNames, ",") + "]"
	}
	return out
}
