package jobs

import (
	"sync"
	"time"
)

// JobResult is the outcome of one job execution, owned by the
// orchestrator and read-only to consumers (the status API). This
// replaces any process-global mutable "last sync" state.
type JobResult struct {
	JobType     string    `json:"job_type"`
	Status      string    `json:"status"`
	EventsCount int       `json:"events_count"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Status holds the latest result per job type.
type Status struct {
	mu      sync.RWMutex
	results map[string]JobResult
}

// NewStatus creates an empty status record.
func NewStatus() *Status {
	return &Status{results: make(map[string]JobResult)}
}

func (s *Status) set(result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.JobType] = result
}

// Results returns a copy of the latest per-job results.
func (s *Status) Results() map[string]JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]JobResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}
