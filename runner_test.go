package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGateway returns scripted batches, one per fetch, in order. A nil
// entry produces a fetch error.
type fakeGateway struct {
	mutex       sync.Mutex
	batches     []*ResultBatch
	fetchErrs   []error
	submitErr   error
	submits     []SubmitRequest
	fetchCount  int
	beforeFetch func(fetch int)
}

func (g *fakeGateway) Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	g.submits = append(g.submits, req)
	return &SubmitAck{RunID: req.RunID, Accepted: true}, nil
}

func (g *fakeGateway) FetchResults(ctx context.Context, runID string) (*ResultBatch, error) {
	g.mutex.Lock()
	fetch := g.fetchCount
	g.fetchCount++
	before := g.beforeFetch
	g.mutex.Unlock()

	if before != nil {
		before(fetch)
	}
	if fetch < len(g.fetchErrs) && g.fetchErrs[fetch] != nil {
		return nil, g.fetchErrs[fetch]
	}
	if fetch < len(g.batches) {
		return g.batches[fetch], nil
	}
	return &ResultBatch{}, nil
}

func (g *fakeGateway) submitCount() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.submits)
}

// recordingCallbacks captures every event for assertions.
type recordingCallbacks struct {
	BaseRunCallbacks
	mutex     sync.Mutex
	started   []*RunStartedEvent
	firstSeen []*NodeResultEvent
	failures  []*FetchFailureEvent
	finished  []*RunFinishedEvent
}

func (c *recordingCallbacks) OnRunStarted(ctx context.Context, event *RunStartedEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.started = append(c.started, event)
}

func (c *recordingCallbacks) OnNodeFirstSeen(ctx context.Context, event *NodeResultEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.firstSeen = append(c.firstSeen, event)
}

func (c *recordingCallbacks) OnFetchFailed(ctx context.Context, event *FetchFailureEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.failures = append(c.failures, event)
}

func (c *recordingCallbacks) OnRunFinished(ctx context.Context, event *RunFinishedEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.finished = append(c.finished, event)
}

func (c *recordingCallbacks) firstSeenNodeIDs() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var ids []string
	for _, event := range c.firstSeen {
		ids = append(ids, event.NodeID)
	}
	return ids
}

func twoNodeGraph(t *testing.T) *Graph {
	t.Helper()
	graph, err := NewGraph(Options{
		Name: "two-node",
		Nodes: []*Node{
			{ID: "a", Title: "Start", Type: NodeTypeStart},
			{ID: "b", Title: "End", Type: NodeTypeEnd},
		},
		Edges: []*Edge{{Source: "a", Target: "b"}},
	})
	require.NoError(t, err)
	return graph
}

func newTestRunner(t *testing.T, graph *Graph, gateway Gateway, callbacks RunCallbacks) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Graph:             graph,
		Gateway:           gateway,
		Callbacks:         callbacks,
		PollInterval:      5 * time.Millisecond,
		StopCheckInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

func TestNewRunnerValidation(t *testing.T) {
	t.Run("missing graph returns error", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Gateway: &fakeGateway{}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "graph is required")
	})

	t.Run("missing gateway returns error", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Graph: twoNodeGraph(t)})
		require.Error(t, err)
		require.Contains(t, err.Error(), "gateway is required")
	})
}

func TestRunCompletesOnEndMarker(t *testing.T) {
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{{NodeID: "a", Type: NodeTypeStart}}},
			{Results: []*NodeResult{{NodeID: "b", Type: NodeTypeEnd}}},
		},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	require.NoError(t, r.Run(context.Background(), nil))

	require.Equal(t, RunStatusCompleted, r.Status())
	require.Equal(t, 2, r.PollCount())
	require.Empty(t, r.Aggregator().ErrorNodeIDs())
	require.Equal(t, []string{"a", "b"}, callbacks.firstSeenNodeIDs())
	require.Len(t, callbacks.started, 1)
	require.Len(t, callbacks.finished, 1)
	require.Equal(t, "completed", callbacks.finished[0].Reason)
	require.False(t, callbacks.finished[0].Partial)
}

func TestRunCompletesOnNodeCoverageWithoutEndMarker(t *testing.T) {
	// Both nodes report as plain tasks; no batch ever carries the end
	// marker, so coverage of the linked nodes must terminate the run.
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{{NodeID: "a", Type: "task"}}},
			{Results: []*NodeResult{{NodeID: "b", Type: "task"}}},
		},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	require.NoError(t, r.Run(context.Background(), nil))

	require.Equal(t, RunStatusCompleted, r.Status())
	require.Len(t, callbacks.finished, 1)
	require.Equal(t, "completed", callbacks.finished[0].Reason)
}

func TestRunStoppedBetweenFetches(t *testing.T) {
	var r *Runner
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{{NodeID: "a", Type: NodeTypeStart}}},
			{Results: []*NodeResult{{NodeID: "b", Type: NodeTypeEnd}}},
		},
	}
	gateway.beforeFetch = func(fetch int) {
		if fetch == 1 {
			r.Stop()
		}
	}
	callbacks := &recordingCallbacks{}
	r = newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	require.NoError(t, r.Run(context.Background(), nil))

	require.Equal(t, RunStatusStopped, r.Status())
	results := r.Aggregator().Results()
	require.Contains(t, results, "a")
	require.Len(t, callbacks.finished, 1)
	require.Equal(t, "stopped", callbacks.finished[0].Reason)
	require.True(t, callbacks.finished[0].Partial)
}

func TestStopIsIdempotent(t *testing.T) {
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{{NodeID: "a", Type: NodeTypeStart}}},
		},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	gateway.beforeFetch = func(fetch int) {
		if fetch == 1 {
			r.Stop()
			r.Stop()
		}
	}
	require.NoError(t, r.Run(context.Background(), nil))

	require.Equal(t, RunStatusStopped, r.Status())
	require.Len(t, callbacks.finished, 1)
	require.Equal(t, "stopped", callbacks.finished[0].Reason)
}

func TestNodeErrorClearedByCleanReReport(t *testing.T) {
	// The same node first reports an error, then re-reports clean. The
	// final view must not flag it, and only one first-seen event fires.
	graph, err := NewGraph(Options{
		Name: "one-task",
		Nodes: []*Node{
			{ID: "c", Title: "Task", Type: "task"},
			{ID: "d", Type: "task"},
		},
		Edges: []*Edge{{Source: "c", Target: "d"}},
	})
	require.NoError(t, err)

	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{{NodeID: "c", Type: "task", HasError: true}}},
			{Results: []*NodeResult{
				{NodeID: "c", Type: "task", HasError: false},
				{NodeID: "d", Type: "task"},
			}},
		},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, graph, gateway, callbacks)

	require.NoError(t, r.Run(context.Background(), nil))

	require.Equal(t, RunStatusCompleted, r.Status())
	result, ok := r.Aggregator().Result("c")
	require.True(t, ok)
	require.False(t, result.HasError)
	require.Empty(t, r.Aggregator().ErrorNodeIDs())
	require.Equal(t, []string{"c", "d"}, callbacks.firstSeenNodeIDs())
}

func TestSubmitFailure(t *testing.T) {
	gateway := &fakeGateway{submitErr: errors.New("engine unavailable")}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	err := r.Run(context.Background(), nil)
	require.Error(t, err)
	require.True(t, MatchesErrorType(err, ErrorTypeSubmit))

	require.Equal(t, RunStatusFailed, r.Status())
	require.Equal(t, 0, gateway.fetchCount)
	require.Equal(t, 0, r.Aggregator().DistinctCount())
	require.Empty(t, callbacks.started)
	require.Len(t, callbacks.finished, 1)
	require.Equal(t, "failed", callbacks.finished[0].Reason)
}

func TestValidationFailureAbortsBeforeSubmit(t *testing.T) {
	graph, err := NewGraph(Options{
		Name: "invalid",
		Nodes: []*Node{
			{ID: "a", Type: NodeTypeStart},
			{ID: "b", Type: "agent"}, // missing required "model" config
		},
		Edges: []*Edge{{Source: "a", Target: "b"}},
	})
	require.NoError(t, err)

	gateway := &fakeGateway{}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, graph, gateway, callbacks)

	runErr := r.Run(context.Background(), nil)
	require.Error(t, runErr)
	require.True(t, MatchesErrorType(runErr, ErrorTypeValidation))

	require.Equal(t, RunStatusIdle, r.Status())
	require.Equal(t, 0, gateway.submitCount())
	require.Empty(t, callbacks.finished)
}

func TestSnapshotFailureAbortsBeforeSubmit(t *testing.T) {
	gateway := &fakeGateway{}
	r, err := NewRunner(RunnerOptions{
		Graph:        twoNodeGraph(t),
		Gateway:      gateway,
		Snapshotter:  &failingSnapshotter{},
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	runErr := r.Run(context.Background(), nil)
	require.Error(t, runErr)
	require.Contains(t, runErr.Error(), "failed to save graph before run")
	require.Equal(t, RunStatusIdle, r.Status())
	require.Equal(t, 0, gateway.submitCount())
}

type failingSnapshotter struct {
	NullSnapshotter
}

func (s *failingSnapshotter) SaveSnapshot(ctx context.Context, snapshot *GraphSnapshot) error {
	return errors.New("disk full")
}

func TestFetchErrorsAreRecoverable(t *testing.T) {
	gateway := &fakeGateway{
		fetchErrs: []error{
			errors.New("engine returned 503 Service Unavailable"),
			nil,
		},
		batches: []*ResultBatch{
			nil,
			{Results: []*NodeResult{
				{NodeID: "a", Type: NodeTypeStart},
				{NodeID: "b", Type: NodeTypeEnd},
			}},
		},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	require.NoError(t, r.Run(context.Background(), nil))

	require.Equal(t, RunStatusCompleted, r.Status())
	require.Len(t, callbacks.failures, 1)
	require.Equal(t, 2, r.PollCount())
}

func TestFetchErrorExhaustion(t *testing.T) {
	gateway := &fakeGateway{
		fetchErrs: []error{
			errors.New("engine returned 503 Service Unavailable"),
			errors.New("engine returned 503 Service Unavailable"),
		},
	}
	r, err := NewRunner(RunnerOptions{
		Graph:             twoNodeGraph(t),
		Gateway:           gateway,
		PollInterval:      time.Millisecond,
		StopCheckInterval: time.Millisecond,
		MaxFetchFailures:  2,
	})
	require.NoError(t, err)

	runErr := r.Run(context.Background(), nil)
	require.Error(t, runErr)
	require.Contains(t, runErr.Error(), "consecutive fetch failures")
	require.Equal(t, RunStatusFailed, r.Status())
}

func TestNonRecoverableFetchErrorFailsRun(t *testing.T) {
	gateway := &fakeGateway{
		fetchErrs: []error{errors.New("engine returned 404 Not Found: unknown run")},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	runErr := r.Run(context.Background(), nil)
	require.Error(t, runErr)
	require.True(t, MatchesErrorType(runErr, ErrorTypeFetch))
	require.Equal(t, RunStatusFailed, r.Status())
	require.Len(t, callbacks.failures, 1)
}

func TestStopInterruptsWait(t *testing.T) {
	// The first fetch returns an empty batch, so the loop enters its
	// interruptible wait. A stop arriving mid-wait must exit well before
	// the fixed interval elapses.
	gateway := &fakeGateway{
		batches: []*ResultBatch{{}},
	}
	r, err := NewRunner(RunnerOptions{
		Graph:             twoNodeGraph(t),
		Gateway:           gateway,
		PollInterval:      2 * time.Second,
		StopCheckInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), nil)
	}()

	// Give the loop time to reach the wait, then stop
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	r.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not exit before the poll interval elapsed")
	}
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, RunStatusStopped, r.Status())
}

func TestRunRefusedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{
				{NodeID: "a", Type: NodeTypeStart},
				{NodeID: "b", Type: NodeTypeEnd},
			}},
		},
	}
	gateway.beforeFetch = func(fetch int) {
		if fetch == 0 {
			<-release
		}
	}
	r := newTestRunner(t, twoNodeGraph(t), gateway, &recordingCallbacks{})

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), nil)
	}()
	time.Sleep(20 * time.Millisecond)

	err := r.Run(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already in progress")

	close(release)
	require.NoError(t, <-done)
}

func TestNewSessionResetsState(t *testing.T) {
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{
				{NodeID: "a", Type: NodeTypeStart},
				{NodeID: "b", Type: NodeTypeEnd},
			}},
			// Second session
			{Results: []*NodeResult{
				{NodeID: "a", Type: NodeTypeStart},
				{NodeID: "b", Type: NodeTypeEnd},
			}},
		},
	}
	callbacks := &recordingCallbacks{}
	r := newTestRunner(t, twoNodeGraph(t), gateway, callbacks)

	require.NoError(t, r.Run(context.Background(), nil))
	firstRunID := r.RunID()
	require.Equal(t, 1, r.PollCount())

	require.NoError(t, r.Run(context.Background(), nil))
	require.NotEqual(t, firstRunID, r.RunID())
	require.Equal(t, 1, r.PollCount())
	require.Equal(t, 2, r.Aggregator().DistinctCount())

	// First-seen events fire once per node per session
	require.Equal(t, []string{"a", "b", "a", "b"}, callbacks.firstSeenNodeIDs())
}

func TestRunWithFormInputs(t *testing.T) {
	graph, err := NewGraph(Options{
		Name: "form",
		Nodes: []*Node{
			{ID: "a", Type: NodeTypeStart, Fields: []*FormField{
				{Name: "question", Type: "string", Required: true},
				{Name: "tone", Type: "string", Default: "neutral"},
			}},
			{ID: "b", Type: NodeTypeEnd},
		},
		Edges: []*Edge{{Source: "a", Target: "b"}},
	})
	require.NoError(t, err)

	t.Run("missing required input rejected", func(t *testing.T) {
		r := newTestRunner(t, graph, &fakeGateway{}, &recordingCallbacks{})
		runErr := r.Run(context.Background(), nil)
		require.Error(t, runErr)
		require.Contains(t, runErr.Error(), `input "question" is required`)
	})

	t.Run("defaults applied and inputs submitted", func(t *testing.T) {
		gateway := &fakeGateway{
			batches: []*ResultBatch{
				{Results: []*NodeResult{
					{NodeID: "a", Type: NodeTypeStart},
					{NodeID: "b", Type: NodeTypeEnd},
				}},
			},
		}
		r := newTestRunner(t, graph, gateway, &recordingCallbacks{})
		require.NoError(t, r.Run(context.Background(), map[string]any{"question": "why?"}))

		require.Equal(t, 1, gateway.submitCount())
		inputs := gateway.submits[0].FormInputs
		require.Equal(t, "why?", inputs["question"])
		require.Equal(t, "neutral", inputs["tone"])
	})
}

func TestSummary(t *testing.T) {
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{
				{NodeID: "a", Type: NodeTypeStart},
				{NodeID: "b", Type: NodeTypeEnd, HasError: true},
			}},
		},
	}
	r := newTestRunner(t, twoNodeGraph(t), gateway, &recordingCallbacks{})
	require.NoError(t, r.Run(context.Background(), nil))

	summary := r.Summary()
	require.Equal(t, "completed", summary.Status)
	require.Equal(t, 2, summary.NodeCount)
	require.Equal(t, 1, summary.ErrorCount)
	require.Equal(t, 1, summary.PollCount)
	require.Equal(t, r.RunID(), summary.RunID)
	require.False(t, summary.EndedAt.IsZero())
}

func TestSnapshotSavedWithRunID(t *testing.T) {
	snapshotter := &capturingSnapshotter{}
	gateway := &fakeGateway{
		batches: []*ResultBatch{
			{Results: []*NodeResult{
				{NodeID: "a", Type: NodeTypeStart},
				{NodeID: "b", Type: NodeTypeEnd},
			}},
		},
	}
	r, err := NewRunner(RunnerOptions{
		Graph:        twoNodeGraph(t),
		Gateway:      gateway,
		Snapshotter:  snapshotter,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), nil))

	require.Len(t, snapshotter.saved, 1)
	snapshot := snapshotter.saved[0]
	require.Equal(t, r.RunID(), snapshot.LastRunID)
	require.Equal(t, "two-node", snapshot.GraphName)
	require.Len(t, snapshot.Document.Nodes, 2)

	// The snapshot must be durable before the submission goes out
	require.Equal(t, 1, gateway.submitCount())
}

type capturingSnapshotter struct {
	NullSnapshotter
	saved []*GraphSnapshot
}

func (s *capturingSnapshotter) SaveSnapshot(ctx context.Context, snapshot *GraphSnapshot) error {
	s.saved = append(s.saved, snapshot)
	return nil
}

func TestContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gateway := &fakeGateway{
		fetchErrs: []error{fmt.Errorf("fetch aborted: %w", context.Canceled)},
	}
	gateway.beforeFetch = func(fetch int) {
		if fetch == 0 {
			cancel()
		}
	}
	r := newTestRunner(t, twoNodeGraph(t), gateway, &recordingCallbacks{})

	require.NoError(t, r.Run(ctx, nil))
	require.Equal(t, RunStatusStopped, r.Status())
}
