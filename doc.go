// Package mastra provides a durable workflow engine for Go applications.
// Workflows are directed step graphs built with a fluent API, executed by a
// per-step state machine that supports branching, join barriers, loops,
// retries, and suspend/resume with snapshot persistence.
//
// The core types live in the [github.com/mastra-ai/mastra/workflow] package:
//
//   - [workflow.Workflow] defines a step graph with the fluent builder
//     (Step, Then, After, If/Else, While/Until, AfterEvent).
//   - [workflow.Run] executes one instance of a workflow and exposes
//     Start, Resume, ResumeWithEvent, Watch, and State.
//   - [workflow.SnapshotStore] persists run state after every transition;
//     in-memory, file, and SQLite implementations are included.
//
// # Quick Start
//
//	m, _ := mastra.New(mastra.Options{})
//	wf, _ := m.NewWorkflow(workflow.WorkflowOptions{Name: "greeting"})
//	wf.Step(workflow.NewStep(workflow.StepOptions{
//	    ID: "greet",
//	    Handler: func(ctx context.Context, sctx *workflow.StepContext) (map[string]any, error) {
//	        return map[string]any{"message": "hello"}, nil
//	    },
//	})).Commit()
//	run, _ := wf.CreateRun(workflow.CreateRunOptions{})
//	result, _ := run.Start(ctx, workflow.StartOptions{})
//
// Declarative YAML definitions are supported through the
// [github.com/mastra-ai/mastra/config] package, and persisted runs can be
// inspected with the mastra CLI.
package mastra
