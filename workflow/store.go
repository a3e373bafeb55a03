package workflow

import (
	"context"
	"errors"
	"sync"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a run.
var ErrSnapshotNotFound = errors.New("workflow snapshot not found")

// SnapshotStore persists run snapshots keyed by workflow name and run id.
// Writes are at-least-once and last-write-wins; saving the same state twice
// must be idempotent.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, workflowName, runID string, state *RunState) error
	LoadSnapshot(ctx context.Context, workflowName, runID string) (*RunState, error)
}

// InMemorySnapshotStore keeps snapshots in process memory. It is the default
// store and is primarily useful for tests and ephemeral runs.
type InMemorySnapshotStore struct {
	mutex     sync.RWMutex
	snapshots map[string]*RunState
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		snapshots: make(map[string]*RunState),
	}
}

func snapshotKey(workflowName, runID string) string {
	return workflowName + "/" + runID
}

func (s *InMemorySnapshotStore) SaveSnapshot(ctx context.Context, workflowName, runID string, state *RunState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshots[snapshotKey(workflowName, runID)] = state.Copy()
	return nil
}

func (s *InMemorySnapshotStore) LoadSnapshot(ctx context.Context, workflowName, runID string) (*RunState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	state, ok := s.snapshots[snapshotKey(workflowName, runID)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return state.Copy(), nil
}
