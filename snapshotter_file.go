package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileSnapshotter persists graph snapshots to disk, one directory per
// graph, newest snapshot linked as latest.json.
type FileSnapshotter struct {
	dataDir string
}

// NewFileSnapshotter creates a new file-based snapshotter
func NewFileSnapshotter(dataDir string) (*FileSnapshotter, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".agentcanvas", "snapshots")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileSnapshotter{dataDir: dataDir}, nil
}

func (s *FileSnapshotter) graphDir(graphName string) string {
	return filepath.Join(s.dataDir, graphName)
}

// SaveSnapshot saves the graph snapshot to disk
func (s *FileSnapshotter) SaveSnapshot(ctx context.Context, snapshot *GraphSnapshot) error {
	if snapshot.GraphName == "" {
		return fmt.Errorf("snapshot graph name required")
	}
	dir := s.graphDir(snapshot.GraphName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	snapshotPath := filepath.Join(dir, fmt.Sprintf("snapshot-%s.json", snapshot.ID))
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(snapshotPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// latest.json is a plain copy rather than a symlink so the directory
	// stays portable
	latestPath := filepath.Join(dir, "latest.json")
	if err := os.WriteFile(latestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write latest snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot loads the latest snapshot for a graph
func (s *FileSnapshotter) LoadSnapshot(ctx context.Context, graphName string) (*GraphSnapshot, error) {
	latestPath := filepath.Join(s.graphDir(graphName), "latest.json")
	if _, err := os.Stat(latestPath); os.IsNotExist(err) {
		return nil, nil // No snapshot found
	}
	data, err := os.ReadFile(latestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var snapshot GraphSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteSnapshot removes all snapshot data for a graph
func (s *FileSnapshotter) DeleteSnapshot(ctx context.Context, graphName string) error {
	if err := os.RemoveAll(s.graphDir(graphName)); err != nil {
		return fmt.Errorf("failed to delete snapshot directory: %w", err)
	}
	return nil
}

// ListGraphs returns the latest snapshot for every graph, newest first.
func (s *FileSnapshotter) ListGraphs(ctx context.Context) ([]*GraphSnapshot, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*GraphSnapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	var snapshots []*GraphSnapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snapshot, err := s.LoadSnapshot(ctx, entry.Name())
		if err != nil {
			// Skip graphs we can't read
			continue
		}
		if snapshot != nil {
			snapshots = append(snapshots, snapshot)
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SavedAt.After(snapshots[j].SavedAt)
	})
	return snapshots, nil
}
