package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// HighlightUpdate is the mapping input supplied to the graph renderer:
// which nodes have produced results, which edges connect two reporting
// nodes, and which nodes are currently flagged as errored. Rendering
// mechanics (colors, animation) belong to the renderer.
type HighlightUpdate struct {
	RunID        string   `json:"run_id"`
	NodeIDs      []string `json:"node_ids"`
	EdgeIDs      []string `json:"edge_ids"`
	ErrorNodeIDs []string `json:"error_node_ids"`
	Done         bool     `json:"done"`
}

// HighlightSink applies highlight instructions to the graph renderer.
type HighlightSink interface {
	ApplyHighlights(ctx context.Context, update *HighlightUpdate) error
}

// ResultView is the read surface the synchronizer needs from the
// aggregation state. *Aggregator satisfies it.
type ResultView interface {
	NodeIDs() []string
	ErrorNodeIDs() []string
}

// VisualSynchronizerOptions configures a VisualSynchronizer.
type VisualSynchronizerOptions struct {
	Graph   *Graph
	Results ResultView
	Sink    HighlightSink
	Logger  *slog.Logger
}

// VisualSynchronizer maps aggregated results onto highlight instructions
// for the renderer. It recomputes from the live aggregation state on each
// node appearance and at run end, so the final picture always reflects the
// last-seen error flags.
type VisualSynchronizer struct {
	graph   *Graph
	results ResultView
	sink    HighlightSink
	logger  *slog.Logger
}

// NewVisualSynchronizer creates a synchronizer for one graph.
func NewVisualSynchronizer(opts VisualSynchronizerOptions) (*VisualSynchronizer, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if opts.Results == nil {
		return nil, fmt.Errorf("result view is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("highlight sink is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &VisualSynchronizer{
		graph:   opts.Graph,
		results: opts.Results,
		sink:    opts.Sink,
		logger:  opts.Logger,
	}, nil
}

// Refresh recomputes the highlight sets and applies them.
func (v *VisualSynchronizer) Refresh(ctx context.Context, runID string, done bool) {
	nodeIDs := v.results.NodeIDs()
	resultSet := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		resultSet[id] = true
	}

	// An edge lights up once both of its endpoints have reported
	var edgeIDs []string
	for _, edge := range v.graph.Edges() {
		if resultSet[edge.Source] && resultSet[edge.Target] {
			edgeIDs = append(edgeIDs, edge.Key())
		}
	}

	update := &HighlightUpdate{
		RunID:        runID,
		NodeIDs:      nodeIDs,
		EdgeIDs:      edgeIDs,
		ErrorNodeIDs: v.results.ErrorNodeIDs(),
		Done:         done,
	}
	if err := v.sink.ApplyHighlights(ctx, update); err != nil {
		v.logger.Error("failed to apply highlights", "error", err)
	}
}

// OnRunStarted clears any highlights left over from a previous session.
func (v *VisualSynchronizer) OnRunStarted(ctx context.Context, event *RunStartedEvent) {
	v.Refresh(ctx, event.RunID, false)
}

// OnNodeFirstSeen lights up the newly reporting node and any edges it
// completes.
func (v *VisualSynchronizer) OnNodeFirstSeen(ctx context.Context, event *NodeResultEvent) {
	v.Refresh(ctx, event.RunID, false)
}

// OnFetchFailed leaves the current highlights in place.
func (v *VisualSynchronizer) OnFetchFailed(ctx context.Context, event *FetchFailureEvent) {
	// noop
}

// OnRunFinished applies the final highlight state with the done flag set.
func (v *VisualSynchronizer) OnRunFinished(ctx context.Context, event *RunFinishedEvent) {
	v.Refresh(ctx, event.RunID, true)
}
