package runner

import (
	"errors"
	"sync"
	"time"
)

// RunStatus represents the run status
type RunStatus string

const (
	RunStatusIdle       RunStatus = "idle"
	RunStatusSubmitting RunStatus = "submitting"
	RunStatusPolling    RunStatus = "polling"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusStopped    RunStatus = "stopped"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether the status is absorbing: once reached, the
// engine does not re-enter polling for that session.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusStopped, RunStatusFailed:
		return true
	}
	return false
}

// EndReason returns the ended-reason carried by run-finished events.
func (s RunStatus) EndReason() string {
	return string(s)
}

// RunState consolidates session identity and polling progress for one run.
// Everything here is written by the engine's own control flow; the one
// externally-written cell (stop requested) lives in StopController instead.
type RunState struct {
	mutex      sync.RWMutex
	runID      string
	graphName  string
	status     RunStatus
	startedAt  time.Time
	endedAt    time.Time
	pollCount  int
	isEnd      bool
	formInputs map[string]any
	err        string
}

// newRunState creates state for a fresh session.
func newRunState(graphName string) *RunState {
	return &RunState{
		graphName: graphName,
		status:    RunStatusIdle,
	}
}

// BeginSession resets the state for a new session and records its identity.
func (s *RunState) BeginSession(runID string, formInputs map[string]any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.runID = runID
	s.status = RunStatusSubmitting
	s.startedAt = time.Now()
	s.endedAt = time.Time{}
	s.pollCount = 0
	s.isEnd = false
	s.formInputs = copyMap(formInputs)
	s.err = ""
}

// RunID returns the current session id.
func (s *RunState) RunID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.runID
}

// GraphName returns the name of the graph being run.
func (s *RunState) GraphName() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.graphName
}

// GetStatus returns the current run status
func (s *RunState) GetStatus() RunStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.status
}

// SetStatus updates the run status
func (s *RunState) SetStatus(status RunStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.status = status
}

// SetFinished records the terminal status, end time, and final error.
func (s *RunState) SetFinished(status RunStatus, endedAt time.Time, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.status = status
	s.endedAt = endedAt
	if err != nil {
		s.err = err.Error()
	} else {
		s.err = ""
	}
}

// GetError returns the recorded terminal error, if any.
func (s *RunState) GetError() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.err == "" {
		return nil
	}
	return errors.New(s.err)
}

// StartedAt returns when the session began.
func (s *RunState) StartedAt() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.startedAt
}

// EndedAt returns when the session reached a terminal state.
func (s *RunState) EndedAt() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.endedAt
}

// FormInputs returns a copy of the session's resolved form inputs.
func (s *RunState) FormInputs() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return copyMap(s.formInputs)
}

// IncrementPollCount records one completed fetch attempt, error or success.
func (s *RunState) IncrementPollCount() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pollCount++
}

// PollCount returns the number of completed fetch attempts this session.
func (s *RunState) PollCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.pollCount
}

// MarkEnd records that a terminal condition was detected.
func (s *RunState) MarkEnd() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.isEnd = true
}

// IsEnd reports whether a terminal condition has been detected.
func (s *RunState) IsEnd() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.isEnd
}
