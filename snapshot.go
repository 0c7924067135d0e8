package runner

import "time"

// GraphSnapshot is the persisted form of a graph document taken when a
// session begins. LastRunID ties the saved document to the execution it
// produced, so a later reload can recover which run a saved state belongs
// to.
type GraphSnapshot struct {
	ID        string    `json:"id"`
	GraphID   string    `json:"graph_id,omitempty"`
	GraphName string    `json:"graph_name"`
	Document  Options   `json:"document"`
	LastRunID string    `json:"last_run_id"`
	SavedAt   time.Time `json:"saved_at"`
}
