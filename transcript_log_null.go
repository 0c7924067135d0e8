package runner

import "context"

// NullTranscriptLog is a no-op implementation
type NullTranscriptLog struct{}

func NewNullTranscriptLog() *NullTranscriptLog {
	return &NullTranscriptLog{}
}

func (l *NullTranscriptLog) LogMessage(ctx context.Context, message *ChatMessage) error {
	return nil
}

func (l *NullTranscriptLog) GetTranscript(ctx context.Context, runID string) ([]*ChatMessage, error) {
	return nil, nil
}
