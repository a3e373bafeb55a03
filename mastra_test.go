package mastra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastra-ai/mastra/workflow"
)

func TestRegistry(t *testing.T) {
	m, err := New(Options{})
	require.NoError(t, err)

	wf, err := m.NewWorkflow(workflow.WorkflowOptions{Name: "sync-users"})
	require.NoError(t, err)
	require.Equal(t, "sync-users", wf.Name())

	got, err := m.GetWorkflow("sync-users")
	require.NoError(t, err)
	require.Same(t, wf, got)

	_, err = m.GetWorkflow("missing")
	require.Error(t, err)

	require.Error(t, m.RegisterWorkflow(wf)) // duplicate name
	require.Error(t, m.RegisterWorkflow(nil))

	other, err := m.NewWorkflow(workflow.WorkflowOptions{Name: "billing"})
	require.NoError(t, err)
	workflows := m.Workflows()
	require.Len(t, workflows, 2)
	require.Same(t, other, workflows[0]) // sorted by name
	require.Same(t, wf, workflows[1])
}

func TestSharedStorage(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewInMemorySnapshotStore()
	m, err := New(Options{Storage: store})
	require.NoError(t, err)

	wf, err := m.NewWorkflow(workflow.WorkflowOptions{Name: "ingest"})
	require.NoError(t, err)
	wf.Step(workflow.NewStep(workflow.StepOptions{ID: "pull"})).Commit()

	run, err := wf.CreateRun(workflow.CreateRunOptions{RunID: "run-1"})
	require.NoError(t, err)
	_, err = run.Start(ctx, workflow.StartOptions{})
	require.NoError(t, err)

	// The run state is reachable through the instance-level lookup.
	state, err := m.RunState(ctx, "ingest", "run-1")
	require.NoError(t, err)
	require.Equal(t, "completed", state.Value["pull"])

	_, err = m.RunState(ctx, "missing", "run-1")
	require.Error(t, err)
}

func TestNewWithWorkflows(t *testing.T) {
	wf := workflow.NewWorkflow(workflow.WorkflowOptions{Name: "prebuilt"})
	m, err := New(Options{Workflows: []*workflow.Workflow{wf}})
	require.NoError(t, err)
	got, err := m.GetWorkflow("prebuilt")
	require.NoError(t, err)
	require.Same(t, wf, got)
}
