package cli

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mastra-ai/mastra/workflow"
)

func snapshotWith(runID string, value map[string]string, suspended map[string]string) *workflow.RunState {
	return &workflow.RunState{
		RunID:          runID,
		Value:          value,
		SuspendedSteps: suspended,
	}
}

func TestRunStatus(t *testing.T) {
	require.Equal(t, "completed", runStatus(snapshotWith("r", map[string]string{
		"a": "completed", "b": "skipped",
	}, nil)))
	require.Equal(t, "failed", runStatus(snapshotWith("r", map[string]string{
		"a": "completed", "b": "failed",
	}, nil)))
	require.Equal(t, "running", runStatus(snapshotWith("r", map[string]string{
		"a": "completed", "b": "pending",
	}, nil)))
	require.Equal(t, "suspended", runStatus(snapshotWith("r", map[string]string{
		"a": "completed", "b": "suspended",
	}, map[string]string{"b": "suspended"})))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "long-na...", truncate("long-name-here", 10))
	require.Equal(t, "ab", truncate("abcd", 2))
}

func TestFindRun(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	store, err := workflow.NewSQLiteSnapshotStore(db)
	require.NoError(t, err)

	state := snapshotWith("run-1", map[string]string{"a": "completed"}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, "alpha", "run-1", state))
	require.NoError(t, store.SaveSnapshot(ctx, "beta", "run-1", state))
	require.NoError(t, store.SaveSnapshot(ctx, "alpha", "run-2", state))

	record, err := findRun(ctx, store, "run-2", "")
	require.NoError(t, err)
	require.Equal(t, "alpha", record.WorkflowName)

	// Ambiguous without a workflow filter.
	_, err = findRun(ctx, store, "run-1", "")
	require.Error(t, err)

	record, err = findRun(ctx, store, "run-1", "beta")
	require.NoError(t, err)
	require.Equal(t, "beta", record.WorkflowName)

	_, err = findRun(ctx, store, "ghost", "")
	require.Error(t, err)
}
