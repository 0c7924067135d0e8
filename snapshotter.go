package runner

import "context"

// Snapshotter persists graph documents at session start. This is the only
// durable save the engine performs before execution; if it fails, the run
// is treated as never started.
type Snapshotter interface {
	// SaveSnapshot persists a graph document snapshot
	SaveSnapshot(ctx context.Context, snapshot *GraphSnapshot) error

	// LoadSnapshot loads the latest snapshot saved for a graph
	LoadSnapshot(ctx context.Context, graphName string) (*GraphSnapshot, error)

	// DeleteSnapshot removes snapshot data for a graph
	DeleteSnapshot(ctx context.Context, graphName string) error
}
