package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSnapshotStore persists one JSON document per run under
// <root>/<workflow>/<run-id>.json. Writes go through a temp file and rename
// so a crash never leaves a truncated snapshot behind.
type FileSnapshotStore struct {
	root string
}

var _ SnapshotStore = (*FileSnapshotStore)(nil)

func NewFileSnapshotStore(root string) (*FileSnapshotStore, error) {
	if root == "" {
		return nil, fmt.Errorf("snapshot store root directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileSnapshotStore{root: root}, nil
}

func (s *FileSnapshotStore) snapshotPath(workflowName, runID string) string {
	return filepath.Join(s.root, sanitizePathComponent(workflowName), sanitizePathComponent(runID)+".json")
}

func (s *FileSnapshotStore) SaveSnapshot(ctx context.Context, workflowName, runID string, state *RunState) error {
	path := s.snapshotPath(workflowName, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create workflow directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) LoadSnapshot(ctx context.Context, workflowName, runID string) (*RunState, error) {
	data, err := os.ReadFile(s.snapshotPath(workflowName, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// ListRuns returns the run ids with a stored snapshot for a workflow,
// sorted for stable output.
func (s *FileSnapshotStore) ListRuns(ctx context.Context, workflowName string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, sanitizePathComponent(workflowName)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var runIDs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		runIDs = append(runIDs, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(runIDs)
	return runIDs, nil
}

// sanitizePathComponent keeps workflow and run names from escaping the store
// root or colliding with path syntax.
func sanitizePathComponent(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	out := replacer.Replace(name)
	if out == "" {
		out = "_"
	}
	return out
}
