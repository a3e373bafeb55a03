package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleState(runID string) *RunState {
	return &RunState{
		Value: map[string]string{"fetch": "completed", "review": "suspended"},
		Context: &WorkflowContext{
			Steps: map[string]StepResult{
				"fetch": successResult(map[string]any{"rows": float64(3)}),
			},
			TriggerData: map[string]any{"source": "api"},
			Attempts:    map[string]int{"fetch": 0},
		},
		ActivePaths: []ActivePath{
			{StepPath: []string{"review"}, StepID: "review", Status: "suspended"},
		},
		RunID:          runID,
		Timestamp:      time.Now().UTC(),
		ChildStates:    map[string]map[string]any{"work": {"iterations": float64(2)}},
		SuspendedSteps: map[string]string{"review": "suspended"},
	}
}

func TestInMemorySnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySnapshotStore()

	_, err := store.LoadSnapshot(ctx, "wf", "run-1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	state := sampleState("run-1")
	require.NoError(t, store.SaveSnapshot(ctx, "wf", "run-1", state))

	loaded, err := store.LoadSnapshot(ctx, "wf", "run-1")
	require.NoError(t, err)
	require.Equal(t, state.Value, loaded.Value)
	require.Equal(t, state.SuspendedSteps, loaded.SuspendedSteps)

	// The store holds a copy, not the caller's pointer.
	state.Value["fetch"] = "mutated"
	loaded, err = store.LoadSnapshot(ctx, "wf", "run-1")
	require.NoError(t, err)
	require.Equal(t, "completed", loaded.Value["fetch"])

	// Same run id under another workflow is a distinct snapshot.
	_, err = store.LoadSnapshot(ctx, "other", "run-1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestInMemorySnapshotStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySnapshotStore()

	first := sampleState("run-1")
	require.NoError(t, store.SaveSnapshot(ctx, "wf", "run-1", first))

	second := sampleState("run-1")
	second.Value["review"] = "completed"
	require.NoError(t, store.SaveSnapshot(ctx, "wf", "run-1", second))

	loaded, err := store.LoadSnapshot(ctx, "wf", "run-1")
	require.NoError(t, err)
	require.Equal(t, "completed", loaded.Value["review"])
}
