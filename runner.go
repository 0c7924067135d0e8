package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcanvas/runner/retry"
	"github.com/agentcanvas/runner/script"
	"go.jetify.com/typeid"
)

// NewRunID returns a new typeid for run session identification
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunnerOptions configures a new Runner.
type RunnerOptions struct {
	Graph          *Graph
	Gateway        Gateway
	Snapshotter    Snapshotter
	Callbacks      RunCallbacks
	Logger         *slog.Logger
	ScriptCompiler script.Compiler

	// PollInterval is the fixed wait between polls. Defaults to one
	// second.
	PollInterval time.Duration

	// StopCheckInterval bounds how long the wait keeps running after a
	// stop request arrives. Defaults to 100 milliseconds.
	StopCheckInterval time.Duration

	// MaxFetchFailures, when positive, fails the run after that many
	// consecutive fetch errors. Zero polls indefinitely through
	// recoverable errors.
	MaxFetchFailures int
}

// Runner orchestrates one workflow run at a time against a remote
// execution engine: it validates and snapshots the graph, submits it, then
// polls for incremental per-node results until the run completes, fails,
// or is stopped.
//
// Termination is detected two independent ways: an explicit end-marker
// record, or full coverage of the graph's linked nodes. The remote engine
// does not emit an end marker for every topology, so either condition is
// sufficient on its own; a coverage match terminates even when the last
// record is not an end node.
type Runner struct {
	graph             *Graph
	gateway           Gateway
	snapshotter       Snapshotter
	callbacks         RunCallbacks
	logger            *slog.Logger
	compiler          script.Compiler
	pollInterval      time.Duration
	stopCheckInterval time.Duration
	maxFetchFailures  int

	// Shared by handle with any in-flight loop; never copied into loop
	// state
	stop *StopController

	aggregator *Aggregator
	state      *RunState

	mutex   sync.Mutex
	running bool
}

// NewRunner creates a new runner for one graph.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if opts.Snapshotter == nil {
		opts.Snapshotter = NewNullSnapshotter()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewBaseRunCallbacks()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.StopCheckInterval <= 0 {
		opts.StopCheckInterval = 100 * time.Millisecond
	}

	return &Runner{
		graph:             opts.Graph,
		gateway:           opts.Gateway,
		snapshotter:       opts.Snapshotter,
		callbacks:         opts.Callbacks,
		logger:            opts.Logger,
		compiler:          opts.ScriptCompiler,
		pollInterval:      opts.PollInterval,
		stopCheckInterval: opts.StopCheckInterval,
		maxFetchFailures:  opts.MaxFetchFailures,
		stop:              NewStopController(),
		aggregator:        NewAggregator(),
		state:             newRunState(opts.Graph.Name()),
	}, nil
}

// Graph returns the graph this runner executes.
func (r *Runner) Graph() *Graph {
	return r.graph
}

// Aggregator returns the live aggregation state for UI reads.
func (r *Runner) Aggregator() *Aggregator {
	return r.aggregator
}

// RunID returns the current session id.
func (r *Runner) RunID() string {
	return r.state.RunID()
}

// Status returns the current run status.
func (r *Runner) Status() RunStatus {
	return r.state.GetStatus()
}

// PollCount returns the number of completed fetch attempts this session.
func (r *Runner) PollCount() int {
	return r.state.PollCount()
}

// Stop requests a cooperative stop. Idempotent; the polling loop exits at
// its next check point, at worst one fetch round-trip plus the stop check
// interval later.
func (r *Runner) Stop() {
	r.stop.RequestStop()
}

// Summary returns a summary of the current or most recent run.
func (r *Runner) Summary() *RunSummary {
	endedAt := r.state.EndedAt()
	var duration time.Duration
	if !r.state.StartedAt().IsZero() {
		if endedAt.IsZero() {
			duration = time.Since(r.state.StartedAt())
		} else {
			duration = endedAt.Sub(r.state.StartedAt())
		}
	}
	var errText string
	if err := r.state.GetError(); err != nil {
		errText = err.Error()
	}
	return &RunSummary{
		RunID:      r.state.RunID(),
		GraphName:  r.graph.Name(),
		Status:     string(r.state.GetStatus()),
		StartedAt:  r.state.StartedAt(),
		EndedAt:    endedAt,
		Duration:   duration,
		PollCount:  r.state.PollCount(),
		NodeCount:  r.aggregator.DistinctCount(),
		ErrorCount: r.aggregator.ErrorCount(),
		Error:      errText,
	}
}

// start marks the runner busy for the duration of one session.
func (r *Runner) start() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running {
		return fmt.Errorf("a run is already in progress")
	}
	r.running = true
	return nil
}

func (r *Runner) finishRunning() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.running = false
}

// Run executes one session to a terminal state, blocking until the run
// completes, fails, or is stopped. Inputs are the user's form values for
// the entry node's declared fields.
//
// A validation or snapshot failure aborts before any remote call; no
// run-finished event fires because no session started. Once submission is
// attempted, exactly one run-finished event fires.
func (r *Runner) Run(ctx context.Context, inputs map[string]any) error {
	if err := r.start(); err != nil {
		return err
	}
	defer r.finishRunning()

	runID, formInputs, err := r.beginSession(ctx, inputs)
	if err != nil {
		return err
	}
	return r.run(ctx, runID, formInputs)
}

// beginSession validates the graph, generates the session id, and
// persists the document snapshot tagged with that id. Failure at any step
// means the run never started.
func (r *Runner) beginSession(ctx context.Context, inputs map[string]any) (string, map[string]any, error) {
	if err := r.graph.ValidateLinkedNodes(); err != nil {
		return "", nil, NewValidationError(err)
	}
	formInputs, err := resolveFormInputs(ctx, r.graph, inputs, r.compiler)
	if err != nil {
		return "", nil, NewValidationError(err)
	}

	runID := NewRunID()

	snapshot := &GraphSnapshot{
		ID:        runID,
		GraphID:   r.graph.ID(),
		GraphName: r.graph.Name(),
		Document:  r.graph.Document(),
		LastRunID: runID,
		SavedAt:   time.Now(),
	}
	if err := r.snapshotter.SaveSnapshot(ctx, snapshot); err != nil {
		return "", nil, fmt.Errorf("failed to save graph before run: %w", err)
	}

	// The session exists from here on: new identity, fresh state
	r.stop.Reset()
	r.aggregator.Reset()
	r.state.BeginSession(runID, formInputs)
	return runID, formInputs, nil
}

// run submits the session and drives the polling loop to a terminal state.
func (r *Runner) run(ctx context.Context, runID string, formInputs map[string]any) error {
	logger := r.logger.With("run_id", runID)
	linkedCount := len(r.graph.LinkedNodes())

	ack, err := r.gateway.Submit(ctx, SubmitRequest{
		RunID:      runID,
		GraphID:    r.graph.ID(),
		FormInputs: formInputs,
	})
	if err != nil {
		rerr := NewSubmitError(err)
		logger.Error("submission failed", "error", err)
		r.finish(ctx, RunStatusFailed, rerr)
		return rerr
	}
	logger.Info("run submitted", "graph", r.graph.Name(), "linked_nodes", linkedCount, "ack", ack.Message)

	r.state.SetStatus(RunStatusPolling)
	r.callbacks.OnRunStarted(ctx, &RunStartedEvent{
		RunID:      runID,
		GraphID:    r.graph.ID(),
		GraphName:  r.graph.Name(),
		StartedAt:  r.state.StartedAt(),
		FormInputs: copyMap(formInputs),
		NodeCount:  linkedCount,
	})

	fetchFailures := 0
	for !r.state.IsEnd() && !r.stop.StopRequested() {
		batch, err := r.gateway.FetchResults(ctx, runID)
		r.state.IncrementPollCount()

		if err != nil {
			rerr := NewFetchError(err)
			logger.Warn("fetch failed", "poll_count", r.state.PollCount(), "error", err)
			r.callbacks.OnFetchFailed(ctx, &FetchFailureEvent{
				RunID:     runID,
				PollCount: r.state.PollCount(),
				Err:       rerr,
			})

			// The fetch may have outlasted a stop request
			if r.stop.StopRequested() {
				break
			}
			if classified := ClassifyError(err); classified.Type == ErrorTypeCanceled {
				r.finish(ctx, RunStatusStopped, nil)
				return nil
			}
			if !retry.IsRecoverable(err) {
				r.finish(ctx, RunStatusFailed, rerr)
				return rerr
			}
			fetchFailures++
			if r.maxFetchFailures > 0 && fetchFailures >= r.maxFetchFailures {
				exhausted := NewRunError(ErrorTypeFetch,
					fmt.Sprintf("giving up after %d consecutive fetch failures", fetchFailures))
				r.finish(ctx, RunStatusFailed, exhausted)
				return exhausted
			}
		} else {
			fetchFailures = 0
			delta := r.aggregator.Apply(batch)
			for _, result := range delta.FirstSeen {
				r.callbacks.OnNodeFirstSeen(ctx, &NodeResultEvent{
					RunID:    runID,
					NodeID:   result.NodeID,
					Title:    result.DisplayTitle(),
					Type:     result.Type,
					Outputs:  copyMap(result.Outputs),
					HasError: result.HasError,
				})
			}
			if batch.EndsRun() || (linkedCount > 0 && r.aggregator.DistinctCount() >= linkedCount) {
				r.state.MarkEnd()
			}
			logger.Debug("batch applied",
				"poll_count", r.state.PollCount(),
				"batch_size", batch.Len(),
				"distinct_nodes", r.aggregator.DistinctCount(),
				"is_end", r.state.IsEnd())
		}

		if r.state.IsEnd() || r.stop.StopRequested() {
			break
		}
		if !r.waitForNextPoll(ctx) {
			break
		}
	}

	if r.stop.StopRequested() || ctx.Err() != nil {
		logger.Info("run stopped", "poll_count", r.state.PollCount(),
			"nodes", r.aggregator.DistinctCount())
		r.finish(ctx, RunStatusStopped, nil)
		return nil
	}

	logger.Info("run completed",
		"poll_count", r.state.PollCount(),
		"nodes", r.aggregator.DistinctCount(),
		"node_errors", r.aggregator.ErrorCount())
	r.finish(ctx, RunStatusCompleted, nil)
	return nil
}

// waitForNextPoll performs the interruptible wait between polls. It
// returns false when the loop should exit instead of polling again. The
// fixed-interval timer races against a short-period stop check so a stop
// request interrupts the wait rather than letting it run to completion.
func (r *Runner) waitForNextPoll(ctx context.Context) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()
	ticker := time.NewTicker(r.stopCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return !r.stop.StopRequested()
		case <-ticker.C:
			if r.stop.StopRequested() {
				return false
			}
		}
	}
}

// finish records the terminal state and emits the single run-finished
// event for the session.
func (r *Runner) finish(ctx context.Context, status RunStatus, rerr *RunError) {
	endedAt := time.Now()
	var err error
	if rerr != nil {
		err = rerr
	}
	r.state.SetFinished(status, endedAt, err)

	startedAt := r.state.StartedAt()
	r.callbacks.OnRunFinished(ctx, &RunFinishedEvent{
		RunID:      r.state.RunID(),
		GraphName:  r.graph.Name(),
		Reason:     status.EndReason(),
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Duration:   endedAt.Sub(startedAt),
		NodeCount:  r.aggregator.DistinctCount(),
		ErrorCount: r.aggregator.ErrorCount(),
		Partial:    status != RunStatusCompleted && r.aggregator.DistinctCount() > 0,
		Err:        rerr,
	})
}
