package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TranscriptSink receives user-visible chat messages. The editor's chat
// pane implements this; the engine only writes to it.
type TranscriptSink interface {
	// Post appends a new message to the transcript.
	Post(ctx context.Context, message *ChatMessage) error

	// Replace swaps an existing message's content in place, keyed by
	// message id. Used to turn the in-progress placeholder into the final
	// summary.
	Replace(ctx context.Context, messageID string, message *ChatMessage) error
}

// TranscriptProjectorOptions configures a TranscriptProjector.
type TranscriptProjectorOptions struct {
	Sink   TranscriptSink
	Log    TranscriptLog
	Logger *slog.Logger
}

// TranscriptProjector turns engine events into transcript messages: an
// in-progress placeholder at run start, one message per node's first
// appearance, a notice per fetch failure, and exactly one final summary
// that replaces the placeholder. Sink failures are logged and otherwise
// ignored; messaging never interferes with polling.
type TranscriptProjector struct {
	sink   TranscriptSink
	log    TranscriptLog
	logger *slog.Logger

	mutex         sync.Mutex
	placeholderID string
}

// NewTranscriptProjector creates a projector writing to the given sink.
func NewTranscriptProjector(opts TranscriptProjectorOptions) (*TranscriptProjector, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("transcript sink is required")
	}
	if opts.Log == nil {
		opts.Log = NewNullTranscriptLog()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TranscriptProjector{
		sink:   opts.Sink,
		log:    opts.Log,
		logger: opts.Logger,
	}, nil
}

func (p *TranscriptProjector) newMessage(runID, kind, body string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.NewString(),
		RunID:     runID,
		Kind:      kind,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func (p *TranscriptProjector) post(ctx context.Context, message *ChatMessage) {
	if err := p.sink.Post(ctx, message); err != nil {
		p.logger.Error("failed to post transcript message", "error", err)
	}
	if err := p.log.LogMessage(ctx, message); err != nil {
		p.logger.Error("failed to log transcript message", "error", err)
	}
}

// OnRunStarted posts the in-progress placeholder.
func (p *TranscriptProjector) OnRunStarted(ctx context.Context, event *RunStartedEvent) {
	message := p.newMessage(event.RunID, MessageKindProgress,
		fmt.Sprintf("Running %s...", event.GraphName))

	p.mutex.Lock()
	p.placeholderID = message.ID
	p.mutex.Unlock()

	p.post(ctx, message)
}

// OnNodeFirstSeen posts one message per node, with the node's display
// title and formatted outputs.
func (p *TranscriptProjector) OnNodeFirstSeen(ctx context.Context, event *NodeResultEvent) {
	body := FormatOutputs(event.Outputs)
	if event.HasError {
		if body != "" {
			body += "\n"
		}
		body += "This step reported an error."
	}
	message := p.newMessage(event.RunID, MessageKindNode, body)
	message.NodeID = event.NodeID
	message.Title = event.Title
	p.post(ctx, message)
}

// OnFetchFailed posts a notice; polling continues so the notice does not
// disturb the placeholder.
func (p *TranscriptProjector) OnFetchFailed(ctx context.Context, event *FetchFailureEvent) {
	p.post(ctx, p.newMessage(event.RunID, MessageKindNotice, event.Err.UserMessage()))
}

// OnRunFinished replaces the placeholder with exactly one summary message.
// The cases are mutually exclusive: stopped by user, failed, completed
// with node errors, or fully successful.
func (p *TranscriptProjector) OnRunFinished(ctx context.Context, event *RunFinishedEvent) {
	var body string
	switch {
	case event.Reason == RunStatusStopped.EndReason():
		body = fmt.Sprintf("Run stopped. Showing partial results from %d node(s).", event.NodeCount)
	case event.Reason == RunStatusFailed.EndReason():
		if event.Err != nil {
			body = event.Err.UserMessage()
		} else {
			body = "The run failed."
		}
	case event.ErrorCount > 0:
		body = fmt.Sprintf("Run completed with %d node error(s).", event.ErrorCount)
	default:
		body = "Run completed successfully."
	}

	message := p.newMessage(event.RunID, MessageKindSummary, body)

	p.mutex.Lock()
	placeholderID := p.placeholderID
	p.placeholderID = ""
	p.mutex.Unlock()

	if placeholderID == "" {
		// The run never got far enough to post a placeholder
		p.post(ctx, message)
		return
	}
	message.ID = placeholderID
	if err := p.sink.Replace(ctx, placeholderID, message); err != nil {
		p.logger.Error("failed to replace transcript placeholder", "error", err)
	}
	if err := p.log.LogMessage(ctx, message); err != nil {
		p.logger.Error("failed to log transcript message", "error", err)
	}
}
