package runner

import (
	"context"
	"time"
)

// RunCallbacks is the engine's outbound event surface. The transcript
// projector and the visual synchronizer both subscribe here; the engine
// owns the channel, so there is no ambient, globally-writable result slot
// for listeners to watch.
type RunCallbacks interface {
	// OnRunStarted fires once per session, after a successful submission.
	OnRunStarted(ctx context.Context, event *RunStartedEvent)

	// OnNodeFirstSeen fires the first time a node's result is observed
	// within a session. Re-reports of the same node do not fire again.
	OnNodeFirstSeen(ctx context.Context, event *NodeResultEvent)

	// OnFetchFailed fires for each failed polling request. The run
	// continues unless a stop is also pending.
	OnFetchFailed(ctx context.Context, event *FetchFailureEvent)

	// OnRunFinished fires exactly once per session that got past
	// validation, with the ended reason and final aggregation counts.
	OnRunFinished(ctx context.Context, event *RunFinishedEvent)
}

// RunStartedEvent provides context for a session that just started.
type RunStartedEvent struct {
	RunID      string
	GraphID    string
	GraphName  string
	StartedAt  time.Time
	FormInputs map[string]any
	NodeCount  int
}

// NodeResultEvent carries a node's first-seen result.
type NodeResultEvent struct {
	RunID    string
	NodeID   string
	Title    string
	Type     string
	Outputs  map[string]any
	HasError bool
}

// FetchFailureEvent reports one failed polling request.
type FetchFailureEvent struct {
	RunID     string
	PollCount int
	Err       *RunError
}

// RunFinishedEvent reports the terminal state of a session.
type RunFinishedEvent struct {
	RunID      string
	GraphName  string
	Reason     string // completed | stopped | failed
	StartedAt  time.Time
	EndedAt    time.Time
	Duration   time.Duration
	NodeCount  int
	ErrorCount int
	Partial    bool
	Err        *RunError
}

// BaseRunCallbacks provides a default implementation that does nothing.
// Embed this in your own callbacks to only implement the events you need.
type BaseRunCallbacks struct{}

func (n *BaseRunCallbacks) OnRunStarted(ctx context.Context, event *RunStartedEvent) {
	// noop
}

func (n *BaseRunCallbacks) OnNodeFirstSeen(ctx context.Context, event *NodeResultEvent) {
	// noop
}

func (n *BaseRunCallbacks) OnFetchFailed(ctx context.Context, event *FetchFailureEvent) {
	// noop
}

func (n *BaseRunCallbacks) OnRunFinished(ctx context.Context, event *RunFinishedEvent) {
	// noop
}

// NewBaseRunCallbacks creates a new no-op callbacks implementation.
func NewBaseRunCallbacks() RunCallbacks {
	return &BaseRunCallbacks{}
}

// CallbackChain fans events out to multiple callback implementations in
// registration order.
type CallbackChain struct {
	callbacks []RunCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...RunCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback RunCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) OnRunStarted(ctx context.Context, event *RunStartedEvent) {
	for _, callback := range c.callbacks {
		callback.OnRunStarted(ctx, event)
	}
}

func (c *CallbackChain) OnNodeFirstSeen(ctx context.Context, event *NodeResultEvent) {
	for _, callback := range c.callbacks {
		callback.OnNodeFirstSeen(ctx, event)
	}
}

func (c *CallbackChain) OnFetchFailed(ctx context.Context, event *FetchFailureEvent) {
	for _, callback := range c.callbacks {
		callback.OnFetchFailed(ctx, event)
	}
}

func (c *CallbackChain) OnRunFinished(ctx context.Context, event *RunFinishedEvent) {
	for _, callback := range c.callbacks {
		callback.OnRunFinished(ctx, event)
	}
}
