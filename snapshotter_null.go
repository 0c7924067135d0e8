package runner

import "context"

// NullSnapshotter is a no-op implementation
type NullSnapshotter struct{}

func NewNullSnapshotter() *NullSnapshotter {
	return &NullSnapshotter{}
}

func (s *NullSnapshotter) SaveSnapshot(ctx context.Context, snapshot *GraphSnapshot) error {
	return nil
}

func (s *NullSnapshotter) LoadSnapshot(ctx context.Context, graphName string) (*GraphSnapshot, error) {
	return nil, nil
}

func (s *NullSnapshotter) DeleteSnapshot(ctx context.Context, graphName string) error {
	return nil
}
