package runner

import "context"

// SubmitRequest carries everything the remote engine needs to start
// executing a saved graph.
type SubmitRequest struct {
	RunID      string         `json:"run_id"`
	GraphID    string         `json:"graph_id"`
	FormInputs map[string]any `json:"form_inputs,omitempty"`
}

// SubmitAck is the acknowledgement payload returned by a successful
// submission. Opaque to the engine beyond success/failure.
type SubmitAck struct {
	RunID    string `json:"run_id,omitempty"`
	Accepted bool   `json:"accepted,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Gateway is the engine's only reach into the remote execution engine: a
// pure I/O boundary with two request/response operations and no logic of
// its own. Neither operation streams, and neither retries internally;
// failures are returned to the caller's own loop policy.
type Gateway interface {
	// Submit asks the remote engine to begin executing the run.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error)

	// FetchResults requests the incremental per-node results reported so
	// far for a run. An empty batch means no new results yet.
	FetchResults(ctx context.Context, runID string) (*ResultBatch, error)
}
