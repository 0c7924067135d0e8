package runner

import (
	"context"
	"time"
)

// Message kinds recorded in the transcript.
const (
	MessageKindProgress = "progress"
	MessageKindNode     = "node"
	MessageKindNotice   = "notice"
	MessageKindSummary  = "summary"
)

// ChatMessage is one user-visible transcript entry.
type ChatMessage struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	NodeID    string    `json:"node_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptLog durably records transcript messages per run.
type TranscriptLog interface {
	// LogMessage records one transcript message
	LogMessage(ctx context.Context, message *ChatMessage) error

	// GetTranscript retrieves the recorded transcript for a run
	GetTranscript(ctx context.Context, runID string) ([]*ChatMessage, error)
}
