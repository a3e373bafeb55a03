package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastra-ai/mastra/schema"
)

func noop(id string) *Step {
	return NewStep(StepOptions{ID: id})
}

func TestBuilderLinearChain(t *testing.T) {
	a, b, c := noop("a"), noop("b"), noop("c")
	wf := NewWorkflow(WorkflowOptions{Name: "linear"}).
		Step(a).
		Then(b).
		Then(c).
		Commit()
	require.NoError(t, wf.BuildError())

	graph := wf.Graph()
	require.Len(t, graph.Initial, 1)
	require.Equal(t, "a", graph.Initial[0].Step.ID())
	require.Len(t, graph.Adjacency["a"], 1)
	require.Equal(t, "b", graph.Adjacency["a"][0].Step.ID())
	require.Len(t, graph.Adjacency["b"], 1)
	require.Equal(t, "c", graph.Adjacency["b"][0].Step.ID())
	require.Empty(t, graph.Adjacency["c"])
}

func TestBuilderParallelRoots(t *testing.T) {
	wf := NewWorkflow(WorkflowOptions{Name: "parallel"}).
		Step(noop("a")).
		Step(noop("b")).
		Commit()
	require.NoError(t, wf.BuildError())
	require.Len(t, wf.Graph().Initial, 2)
}

func TestBuilderAfterCompoundKey(t *testing.T) {
	a, b, c := noop("a"), noop("b"), noop("c")
	wf := NewWorkflow(WorkflowOptions{Name: "join"}).
		Step(a).
		Step(b).
		After(b, a). // order of arguments must not matter
		Step(c).
		Commit()
	require.NoError(t, wf.BuildError())

	subs := wf.Subscribers()
	require.Len(t, subs, 1)
	graph, ok := subs[CompoundKey("a", "b")]
	require.True(t, ok)
	require.Len(t, graph.Initial, 1)
	require.Equal(t, "c", graph.Initial[0].Step.ID())
}

func TestBuilderThenInsideAfterScope(t *testing.T) {
	a, b, c, d := noop("a"), noop("b"), noop("c"), noop("d")
	wf := NewWorkflow(WorkflowOptions{Name: "join-chain"}).
		Step(a).
		Step(b).
		After(a, b).
		Step(c).
		Then(d).
		Commit()
	require.NoError(t, wf.BuildError())

	graph := wf.Subscribers()[CompoundKey("a", "b")]
	require.NotNil(t, graph)
	require.Len(t, graph.Adjacency["c"], 1)
	require.Equal(t, "d", graph.Adjacency["c"][0].Step.ID())
}

func TestBuilderAfterScopeStaysActive(t *testing.T) {
	a, b, c, d := noop("a"), noop("b"), noop("c"), noop("d")
	wf := NewWorkflow(WorkflowOptions{Name: "join-tail"}).
		Step(a).
		Step(b).
		After(a, b).
		Step(c).
		Step(d). // still inside the a&&b scope, not a new root
		Commit()
	require.NoError(t, wf.BuildError())

	require.Len(t, wf.Graph().Initial, 2)
	graph := wf.Subscribers()[CompoundKey("a", "b")]
	require.NotNil(t, graph)
	require.Len(t, graph.Initial, 2)
	require.Equal(t, "c", graph.Initial[0].Step.ID())
	require.Equal(t, "d", graph.Initial[1].Step.ID())
}

func TestBuilderIfElse(t *testing.T) {
	cond := WhenTrigger("ok", map[string]any{"$eq": true})
	wf := NewWorkflow(WorkflowOptions{Name: "branching"}).
		Step(noop("base")).
		If(cond).
		Then(noop("yes")).
		Else().
		Then(noop("no")).
		Commit()
	require.NoError(t, wf.BuildError())

	graph := wf.Graph()
	succs := graph.Adjacency["base"]
	require.Len(t, succs, 2)
	require.Equal(t, "__base_if", succs[0].Step.ID())
	require.NotNil(t, succs[0].Config.When)
	require.Equal(t, "__base_else", succs[1].Step.ID())
	require.NotNil(t, succs[1].Config.When)

	require.Equal(t, "yes", graph.Adjacency["__base_if"][0].Step.ID())
	require.Equal(t, "no", graph.Adjacency["__base_else"][0].Step.ID())
}

func TestBuilderLoopSyntheticSteps(t *testing.T) {
	body := noop("work")
	cond := When("work", "count", map[string]any{"$lt": 3})
	wf := NewWorkflow(WorkflowOptions{Name: "looping"}).
		Step(noop("start")).
		While(cond, body).
		Then(noop("done")).
		Commit()
	require.NoError(t, wf.BuildError())

	graph := wf.Graph()
	require.Equal(t, "work", graph.Adjacency["start"][0].Step.ID())
	require.Equal(t, "__work_while_loop_check", graph.Adjacency["work"][0].Step.ID())

	checkSuccs := graph.Adjacency["__work_while_loop_check"]
	require.Len(t, checkSuccs, 2)
	require.Equal(t, "work", checkSuccs[0].Step.ID()) // re-entry edge
	require.Equal(t, "__work_loop_finished", checkSuccs[1].Step.ID())

	// The chain continues after the loop-finished gate.
	require.Equal(t, "done", graph.Adjacency["__work_loop_finished"][0].Step.ID())
}

func TestBuilderErrors(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		wf := NewWorkflow(WorkflowOptions{}).Step(noop("a")).Commit()
		require.Error(t, wf.BuildError())
		_, err := wf.CreateRun(CreateRunOptions{})
		require.Error(t, err)
	})

	t.Run("duplicate step id", func(t *testing.T) {
		wf := NewWorkflow(WorkflowOptions{Name: "dup"}).
			Step(noop("a")).
			Step(noop("a")).
			Commit()
		require.Error(t, wf.BuildError())
	})

	t.Run("else without if", func(t *testing.T) {
		wf := NewWorkflow(WorkflowOptions{Name: "stray-else"}).
			Step(noop("a")).
			Else().
			Commit()
		require.Error(t, wf.BuildError())
	})

	t.Run("unknown event", func(t *testing.T) {
		wf := NewWorkflow(WorkflowOptions{Name: "no-event"}).
			Step(noop("a")).
			AfterEvent("missing").
			Commit()
		require.Error(t, wf.BuildError())
	})

	t.Run("after with unregistered step", func(t *testing.T) {
		wf := NewWorkflow(WorkflowOptions{Name: "bad-after"}).
			Step(noop("a")).
			After(noop("ghost")).
			Step(noop("b")).
			Commit()
		require.Error(t, wf.BuildError())
	})

	t.Run("empty step id panics", func(t *testing.T) {
		require.Panics(t, func() { NewStep(StepOptions{}) })
	})
}

func TestCompoundKey(t *testing.T) {
	require.Equal(t, CompoundKey("b", "a"), CompoundKey("a", "b"))
	require.Equal(t, []string{"a", "b"}, SplitCompoundKey(CompoundKey("b", "a")))
}

func TestWorkflowStateUnknownRun(t *testing.T) {
	wf := NewWorkflow(WorkflowOptions{Name: "empty"}).Step(noop("a")).Commit()
	_, err := wf.State(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestCreateRunAssignsID(t *testing.T) {
	wf := NewWorkflow(WorkflowOptions{Name: "ids"}).Step(noop("a")).Commit()
	run, err := wf.CreateRun(CreateRunOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, run.RunID())

	named, err := wf.CreateRun(CreateRunOptions{RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, "run-1", named.RunID())

	got, ok := wf.GetRun("run-1")
	require.True(t, ok)
	require.Same(t, named, got)
}

func TestTriggerSchemaAccessor(t *testing.T) {
	s := &schema.Schema{Type: "object"}
	wf := NewWorkflow(WorkflowOptions{Name: "schema", TriggerSchema: s})
	require.Same(t, s, wf.TriggerSchema())
}
