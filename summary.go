package runner

import "time"

// RunSummary provides a summary view of a run
type RunSummary struct {
	RunID      string        `json:"run_id"`
	GraphName  string        `json:"graph_name"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration"`
	PollCount  int           `json:"poll_count"`
	NodeCount  int           `json:"node_count"`
	ErrorCount int           `json:"error_count"`
	Error      string        `json:"error,omitempty"`
}
