// enrichment_store.go provides thread-safe storage for per-run enrichment data
// that correlates hooks with failures seen at the runner boundary.

package agentssdk

import "sync"

// Enrichment contains per-run context captured from hooks.
// It becomes the request section and extra tags of a report.
type Enrichment struct {
	// AgentName is the name of the agent that was running.
	AgentName string

	// Model is the LLM model being used.
	Model string

	// ToolName is the name of the tool being called.
	ToolName string

	// ToolCallID is the unique ID of the tool call.
	ToolCallID string

	// Operation is the kind of operation in progress: tool, llm or handoff.
	Operation string

	// History holds the most recent operations of the run, oldest first.
	History []OperationRecord

	// LLM describes the most recent model call. Snapshots are replaced,
	// never modified, so copies of the pointer are safe to share.
	LLM *LLMSnapshot
}

// EnrichmentStore provides thread-safe storage for per-run enrichment data.
// Implementations must be safe for concurrent use.
type EnrichmentStore interface {
	// Update applies fn to the enrichment for runID, creating it if needed.
	// fn is called while holding the lock. It MUST be fast and MUST NOT call
	// other EnrichmentStore methods.
	Update(runID string, fn func(e *Enrichment))

	// Get returns a copy of the enrichment for runID.
	// Returns zero value and false if not found.
	Get(runID string) (Enrichment, bool)

	// Delete removes the enrichment for runID.
	Delete(runID string)
}

type inMemoryEnrichmentStore struct {
	mu   sync.RWMutex
	data map[string]*Enrichment
}

// NewEnrichmentStore creates a new in-memory enrichment store.
func NewEnrichmentStore() EnrichmentStore {
	return &inMemoryEnrichmentStore{
		data: make(map[string]*Enrichment),
	}
}

func (s *inMemoryEnrichmentStore) Update(runID string, fn func(e *Enrichment)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[runID]
	if !ok {
		e = &Enrichment{}
		s.data[runID] = e
	}
	fn(e)
}

func (s *inMemoryEnrichmentStore) Get(runID string) (Enrichment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[runID]
	if !ok {
		return Enrichment{}, false
	}
	out := *e
	out.History = append([]OperationRecord(nil), e.History...)
	return out, true
}

func (s *inMemoryEnrichmentStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
}
