package runner

// NodeResult is one per-node record reported by the remote execution
// engine. Inputs and Outputs are open structured values; the engine never
// assumes a schema on them beyond display and serialization.
type NodeResult struct {
	NodeID   string         `json:"node_id"`
	Title    string         `json:"title,omitempty"`
	Type     string         `json:"type"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	HasError bool           `json:"has_error,omitempty"`
}

// Copy returns a shallow copy of the result with its own input/output maps.
func (r *NodeResult) Copy() *NodeResult {
	return &NodeResult{
		NodeID:   r.NodeID,
		Title:    r.Title,
		Type:     r.Type,
		Inputs:   copyMap(r.Inputs),
		Outputs:  copyMap(r.Outputs),
		HasError: r.HasError,
	}
}

// DisplayTitle returns the title to surface in the transcript, falling back
// to the node id when the remote payload carried none.
func (r *NodeResult) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.NodeID
}

// ResultBatch is an ordered sequence of node results returned by one fetch.
// An empty batch is valid and means no new results yet.
type ResultBatch struct {
	Results []*NodeResult `json:"results"`
}

// Len returns the number of records in the batch.
func (b *ResultBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Results)
}

// Last returns the final record of the batch, or nil if the batch is empty.
func (b *ResultBatch) Last() *NodeResult {
	if b.Len() == 0 {
		return nil
	}
	return b.Results[len(b.Results)-1]
}

// EndsRun reports whether the batch carries the terminal marker: a
// non-empty batch whose last record has the end node type.
func (b *ResultBatch) EndsRun() bool {
	last := b.Last()
	return last != nil && last.Type == NodeTypeEnd
}
