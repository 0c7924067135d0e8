package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileTranscriptLog is an implementation of TranscriptLog that logs to a
// file. A file is created per run. The file is formatted as
// newline-delimited JSON.
type FileTranscriptLog struct {
	directory string
}

func NewFileTranscriptLog(directory string) *FileTranscriptLog {
	return &FileTranscriptLog{directory: directory}
}

func (l *FileTranscriptLog) runTranscriptPath(runID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", runID))
}

func (l *FileTranscriptLog) GetTranscript(ctx context.Context, runID string) ([]*ChatMessage, error) {
	filePath := l.runTranscriptPath(runID)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var messages []*ChatMessage
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var message ChatMessage
		if err := json.Unmarshal([]byte(line), &message); err != nil {
			return nil, err
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

func (l *FileTranscriptLog) LogMessage(ctx context.Context, message *ChatMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	filePath := l.runTranscriptPath(message.RunID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
