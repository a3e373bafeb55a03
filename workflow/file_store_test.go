package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadSnapshot(ctx, "pipeline", "run-1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	state := sampleState("run-1")
	require.NoError(t, store.SaveSnapshot(ctx, "pipeline", "run-1", state))

	loaded, err := store.LoadSnapshot(ctx, "pipeline", "run-1")
	require.NoError(t, err)
	require.Equal(t, state.Value, loaded.Value)
	require.Equal(t, state.RunID, loaded.RunID)
	require.Equal(t, "api", loaded.Context.TriggerData["source"])
	require.Equal(t, state.ActivePaths, loaded.ActivePaths)
}

func TestFileSnapshotStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, "pipeline")
	require.NoError(t, err)
	require.Empty(t, runs)

	require.NoError(t, store.SaveSnapshot(ctx, "pipeline", "run-b", sampleState("run-b")))
	require.NoError(t, store.SaveSnapshot(ctx, "pipeline", "run-a", sampleState("run-a")))
	require.NoError(t, store.SaveSnapshot(ctx, "other", "run-c", sampleState("run-c")))

	runs, err = store.ListRuns(ctx, "pipeline")
	require.NoError(t, err)
	require.Equal(t, []string{"run-a", "run-b"}, runs)
}

func TestFileSnapshotStoreOverwriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot(ctx, "pipeline", "run-1", sampleState("run-1")))
	updated := sampleState("run-1")
	updated.Value["review"] = "completed"
	require.NoError(t, store.SaveSnapshot(ctx, "pipeline", "run-1", updated))

	loaded, err := store.LoadSnapshot(ctx, "pipeline", "run-1")
	require.NoError(t, err)
	require.Equal(t, "completed", loaded.Value["review"])

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "pipeline"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileSnapshotStoreSanitizesNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot(ctx, "../escape", "run/1", sampleState("run/1")))
	loaded, err := store.LoadSnapshot(ctx, "../escape", "run/1")
	require.NoError(t, err)
	require.Equal(t, "run/1", loaded.RunID)

	// Everything stayed under the store root.
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape"))
	require.True(t, os.IsNotExist(err))
}
