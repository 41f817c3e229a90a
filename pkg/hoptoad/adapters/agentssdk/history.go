// history.go keeps a bounded record of the operations a run performed.

package agentssdk

import (
	"fmt"
	"strings"
	"time"
)

// MaxHistory is the number of operations kept per run.
const MaxHistory = 16

var timeNow = time.Now

// OperationRecord is one LLM call, tool call or handoff.
type OperationRecord struct {
	Kind      string // "llm", "tool" or "handoff"
	Name      string // model, tool name or handoff target
	AgentName string
	Started   time.Time
	Duration  time.Duration // zero while the operation is in progress
	Failed    bool
}

func (r OperationRecord) String() string {
	s := r.Kind + ":" + r.Name
	switch {
	case r.Failed:
		s += " (failed)"
	case r.Duration == 0 && r.Kind != "handoff":
		s += " (in progress)"
	}
	return s
}

// appendHistory adds rec to history, evicting the oldest record once
// MaxHistory is reached.
func appendHistory(history []OperationRecord, rec OperationRecord) []OperationRecord {
	if len(history) >= MaxHistory {
		history = append(history[:0:0], history[len(history)-MaxHistory+1:]...)
	}
	return append(history, rec)
}

// finishLast completes the most recent in-progress operation of kind.
func finishLast(history []OperationRecord, kind string, now time.Time, failed bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == kind && history[i].Duration == 0 {
			history[i].Duration = max(now.Sub(history[i].Started), time.Nanosecond)
			history[i].Failed = failed
			return
		}
	}
}

// formatHistory renders history as a single tag value, oldest first.
func formatHistory(history []OperationRecord) string {
	parts := make([]string, len(history))
	for i, rec := range history {
		parts[i] = rec.String()
	}
	return strings.Join(parts, " > ")
}

// formatDuration is used for the duration of the last operation.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
