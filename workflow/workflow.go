package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mastra-ai/mastra/schema"
	"github.com/mastra-ai/mastra/slogger"
)

// Event is a named external event a workflow can wait on via AfterEvent.
// Its schema validates the payload delivered by ResumeWithEvent.
type Event struct {
	Schema *schema.Schema
}

// WorkflowOptions configures a new Workflow.
type WorkflowOptions struct {
	Name          string
	TriggerSchema *schema.Schema
	Logger        slogger.Logger
	SnapshotStore SnapshotStore

	// Mastra is the embedding framework handle passed to function
	// conditions. It is opaque to the engine.
	Mastra any

	// Events declares the named events available to AfterEvent and
	// ResumeWithEvent.
	Events map[string]*Event

	// WaitInterval is the re-check interval for steps in the waiting
	// state. Defaults to one second.
	WaitInterval time.Duration

	// DefaultRetryConfig applies to steps without their own retry config.
	DefaultRetryConfig *RetryConfig
}

// builderScope tracks where fluent calls currently place steps: the main
// graph, or the subscriber graph of an After(...) compound key.
type builderScope struct {
	afterKey string // empty for the main graph
	lastStep string
}

type ifFrame struct {
	baseStep string
	cond     *Condition
}

// Workflow is the user-facing definition object: it accumulates the step
// graph through fluent calls and produces runs via CreateRun. A workflow is
// immutable once committed; all run state lives on the Run.
type Workflow struct {
	name          string
	triggerSchema *schema.Schema
	logger        slogger.Logger
	store         SnapshotStore
	mastra        any
	events        map[string]*Event
	waitInterval  time.Duration
	defaultRetry  *RetryConfig

	steps       map[string]*Step
	graph       *StepGraph
	subscribers SubscriberGraph

	scopes   []builderScope
	ifFrames []ifFrame
	buildErr error
	committed bool

	runsMutex sync.RWMutex
	runs      map[string]*Run
}

// NewWorkflow creates an empty workflow definition. Structural errors made
// during building are recorded and surfaced by Commit and CreateRun.
func NewWorkflow(opts WorkflowOptions) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	store := opts.SnapshotStore
	if store == nil {
		store = NewInMemorySnapshotStore()
	}
	waitInterval := opts.WaitInterval
	if waitInterval <= 0 {
		waitInterval = time.Second
	}
	events := make(map[string]*Event, len(opts.Events))
	for name, event := range opts.Events {
		events[name] = event
	}
	w := &Workflow{
		name:          opts.Name,
		triggerSchema: opts.TriggerSchema,
		logger:        logger.With("workflow", opts.Name),
		store:         store,
		mastra:        opts.Mastra,
		events:        events,
		waitInterval:  waitInterval,
		defaultRetry:  opts.DefaultRetryConfig,
		steps:         make(map[string]*Step),
		graph:         NewStepGraph(),
		subscribers:   make(SubscriberGraph),
		scopes:        []builderScope{{}},
		runs:          make(map[string]*Run),
	}
	if opts.Name == "" {
		w.buildErr = fmt.Errorf("workflow name is required")
	}
	return w
}

func (w *Workflow) Name() string { return w.name }

func (w *Workflow) TriggerSchema() *schema.Schema { return w.triggerSchema }

// Graph returns the main step graph. Read-only during execution.
func (w *Workflow) Graph() *StepGraph { return w.graph }

// Subscribers returns the subscriber graphs keyed by compound key.
func (w *Workflow) Subscribers() SubscriberGraph { return w.subscribers }

// GetStep returns a registered step by id.
func (w *Workflow) GetStep(id string) (*Step, bool) {
	step, ok := w.steps[id]
	return step, ok
}

func (w *Workflow) setBuildErr(err error) {
	if w.buildErr == nil {
		w.buildErr = err
	}
}

func (w *Workflow) scope() *builderScope {
	return &w.scopes[len(w.scopes)-1]
}

func (w *Workflow) graphFor(scope *builderScope) *StepGraph {
	if scope.afterKey == "" {
		return w.graph
	}
	graph, ok := w.subscribers[scope.afterKey]
	if !ok {
		graph = NewStepGraph()
		w.subscribers[scope.afterKey] = graph
	}
	return graph
}

func (w *Workflow) register(step *Step) {
	if existing, ok := w.steps[step.id]; ok && existing != step {
		w.setBuildErr(fmt.Errorf("duplicate step id %q", step.id))
		return
	}
	w.steps[step.id] = step
}

// Step appends a step at the root of the active scope: the main graph's
// initial list, or the subscriber graph of the open After(...) scope.
func (w *Workflow) Step(step *Step, config ...*StepConfig) *Workflow {
	w.register(step)
	scope := w.scope()
	graph := w.graphFor(scope)
	node := newStepNode(step, firstConfig(config))
	graph.Initial = append(graph.Initial, node)
	if _, ok := graph.Adjacency[step.id]; !ok {
		graph.Adjacency[step.id] = nil
	}
	scope.lastStep = step.id
	return w
}

// Then appends a step as a successor of the most recently placed step in the
// active scope. With no previous step it behaves like Step.
func (w *Workflow) Then(step *Step, config ...*StepConfig) *Workflow {
	scope := w.scope()
	if scope.lastStep == "" {
		return w.Step(step, config...)
	}
	w.register(step)
	graph := w.graphFor(scope)
	node := newStepNode(step, firstConfig(config))
	graph.Adjacency[scope.lastStep] = append(graph.Adjacency[scope.lastStep], node)
	if _, ok := graph.Adjacency[step.id]; !ok {
		graph.Adjacency[step.id] = nil
	}
	scope.lastStep = step.id
	return w
}

// After opens a scope gated on the joint completion of all given steps.
// Subsequent Step/Then calls populate that scope's subscriber graph, and the
// scope stays active for the remainder of the chain until the next After
// call; there is no way to return to the root graph. Multiple After calls
// with the same step set accumulate into the same graph.
func (w *Workflow) After(steps ...*Step) *Workflow {
	if len(steps) == 0 {
		w.setBuildErr(fmt.Errorf("after requires at least one step"))
		return w
	}
	ids := make([]string, len(steps))
	for i, step := range steps {
		if _, ok := w.steps[step.id]; !ok {
			w.setBuildErr(fmt.Errorf("after references unknown step %q", step.id))
		}
		ids[i] = step.id
	}
	w.scopes = append(w.scopes, builderScope{afterKey: CompoundKey(ids...)})
	return w
}

// If forks the chain after the last step into a guarded branch. The branch
// is entered when the condition holds; Else opens the complementary branch.
func (w *Workflow) If(cond *Condition) *Workflow {
	scope := w.scope()
	if scope.lastStep == "" {
		w.setBuildErr(fmt.Errorf("if requires a preceding step"))
		return w
	}
	base := scope.lastStep
	w.ifFrames = append(w.ifFrames, ifFrame{baseStep: base, cond: cond})
	ifStep := NewStep(StepOptions{ID: fmt.Sprintf("__%s_if", base)})
	return w.Then(ifStep, &StepConfig{When: cond})
}

// Else opens the complementary branch of the most recent If.
func (w *Workflow) Else() *Workflow {
	if len(w.ifFrames) == 0 {
		w.setBuildErr(fmt.Errorf("else without a matching if"))
		return w
	}
	frame := w.ifFrames[len(w.ifFrames)-1]
	w.ifFrames = w.ifFrames[:len(w.ifFrames)-1]
	scope := w.scope()
	scope.lastStep = frame.baseStep
	elseStep := NewStep(StepOptions{ID: fmt.Sprintf("__%s_else", frame.baseStep)})
	return w.Then(elseStep, &StepConfig{When: Negate(frame.cond)})
}

// While repeatedly executes the step while the condition holds.
func (w *Workflow) While(cond *Condition, step *Step) *Workflow {
	return w.loop(LoopTypeWhile, cond, step)
}

// Until repeatedly executes the step until the condition holds.
func (w *Workflow) Until(cond *Condition, step *Step) *Workflow {
	return w.loop(LoopTypeUntil, cond, step)
}

func (w *Workflow) loop(loopType LoopType, cond *Condition, step *Step) *Workflow {
	label := "while"
	if loopType == LoopTypeUntil {
		label = "until"
	}
	w.Then(step, &StepConfig{LoopLabel: label, LoopType: loopType})

	checkID := fmt.Sprintf("__%s_%s_loop_check", step.id, label)
	check := NewStep(StepOptions{
		ID:      checkID,
		Handler: loopCheckHandler(cond, loopType),
	})
	w.Then(check)

	scope := w.scope()
	graph := w.graphFor(scope)

	// Re-entry: run the body again while the check says continue. The edge
	// is excluded from dependency gating to keep the graph acyclic for
	// scheduling purposes.
	reentry := newStepNode(step, &StepConfig{
		When:        When(checkID, "status", map[string]any{"$eq": "continue"}),
		LoopLabel:   label,
		LoopType:    loopType,
		loopReentry: true,
	})
	graph.Adjacency[checkID] = append(graph.Adjacency[checkID], reentry)

	finished := NewStep(StepOptions{ID: fmt.Sprintf("__%s_loop_finished", step.id)})
	w.register(finished)
	finishedNode := newStepNode(finished, &StepConfig{
		When:     When(checkID, "status", map[string]any{"$eq": "complete"}),
		loopGate: true,
	})
	graph.Adjacency[checkID] = append(graph.Adjacency[checkID], finishedNode)
	if _, ok := graph.Adjacency[finished.id]; !ok {
		graph.Adjacency[finished.id] = nil
	}
	scope.lastStep = finished.id
	return w
}

// loopCheckHandler evaluates the loop condition against the current run
// state. While loops continue when the condition holds; until loops continue
// when it does not.
func loopCheckHandler(cond *Condition, loopType LoopType) StepHandler {
	return func(ctx context.Context, sctx *StepContext) (map[string]any, error) {
		wctx := &WorkflowContext{
			Steps:       sctx.steps,
			TriggerData: sctx.TriggerData,
			InputData:   sctx.InputData,
		}
		outcome, err := evaluateCondition(cond, wctx, nil)
		if err != nil {
			return nil, err
		}
		holds := outcome == OutcomeContinue
		continueLoop := holds
		if loopType == LoopTypeUntil {
			continueLoop = !holds
		}
		status := "complete"
		if continueLoop {
			status = "continue"
		}
		return map[string]any{"status": status}, nil
	}
}

// AfterEvent injects a synthetic step that suspends until the named event is
// delivered via ResumeWithEvent, then chains after it.
func (w *Workflow) AfterEvent(eventName string) *Workflow {
	if _, ok := w.events[eventName]; !ok {
		w.setBuildErr(fmt.Errorf("event %q is not registered on workflow %q", eventName, w.name))
		return w
	}
	step := NewStep(StepOptions{
		ID:      EventStepID(eventName),
		Handler: eventStepHandler(eventName),
	})
	return w.Then(step)
}

// EventStepID returns the synthetic step id used for a named event.
func EventStepID(eventName string) string {
	return fmt.Sprintf("__%s_event", eventName)
}

func eventStepHandler(eventName string) StepHandler {
	return func(ctx context.Context, sctx *StepContext) (map[string]any, error) {
		if data, ok := sctx.InputData["resumedEvent"]; ok && data != nil {
			return map[string]any{"executed": true, "resumedEvent": data}, nil
		}
		sctx.Suspend(map[string]any{"event": eventName})
		return nil, nil
	}
}

// Commit finalizes the graph. It validates the accumulated structure and
// returns the workflow for chaining; structural errors surface here and on
// CreateRun.
func (w *Workflow) Commit() *Workflow {
	w.validateGraph()
	w.committed = true
	return w
}

// BuildError returns the first structural error recorded while building.
func (w *Workflow) BuildError() error {
	return w.buildErr
}

func (w *Workflow) validateGraph() {
	check := func(graph *StepGraph) {
		for _, node := range graph.Nodes() {
			if _, ok := w.steps[node.Step.id]; !ok {
				w.setBuildErr(fmt.Errorf("graph references unregistered step %q", node.Step.id))
			}
		}
	}
	check(w.graph)
	for key, graph := range w.subscribers {
		for _, id := range SplitCompoundKey(key) {
			if _, ok := w.steps[id]; !ok {
				w.setBuildErr(fmt.Errorf("subscriber key references unknown step %q", id))
			}
		}
		check(graph)
	}
}

// CreateRunOptions configures a new run.
type CreateRunOptions struct {
	// RunID is assigned when empty.
	RunID string

	// Events override or extend the workflow-level events for this run.
	Events map[string]*Event
}

// CreateRun instantiates a new run bound to this workflow's graph.
func (w *Workflow) CreateRun(opts CreateRunOptions) (*Run, error) {
	if w.buildErr != nil {
		return nil, fmt.Errorf("workflow %q has a definition error: %w", w.name, w.buildErr)
	}
	if !w.committed {
		w.Commit()
		if w.buildErr != nil {
			return nil, fmt.Errorf("workflow %q has a definition error: %w", w.name, w.buildErr)
		}
	}
	run := newRun(w, opts)
	w.runsMutex.Lock()
	w.runs[run.runID] = run
	w.runsMutex.Unlock()
	return run, nil
}

// GetRun returns an in-memory run by id.
func (w *Workflow) GetRun(runID string) (*Run, bool) {
	w.runsMutex.RLock()
	defer w.runsMutex.RUnlock()
	run, ok := w.runs[runID]
	return run, ok
}

// getOrLoadRun returns the in-memory run or reconstructs one from the
// snapshot store.
func (w *Workflow) getOrLoadRun(ctx context.Context, runID string) (*Run, error) {
	if run, ok := w.GetRun(runID); ok {
		return run, nil
	}
	run, err := w.CreateRun(CreateRunOptions{RunID: runID})
	if err != nil {
		return nil, err
	}
	if err := run.hydrate(ctx); err != nil {
		return nil, err
	}
	return run, nil
}

// State returns the current state of a run, loading it from the snapshot
// store when the run is not held in memory.
func (w *Workflow) State(ctx context.Context, runID string) (*RunState, error) {
	if run, ok := w.GetRun(runID); ok {
		return run.State(), nil
	}
	state, err := w.store.LoadSnapshot(ctx, w.name, runID)
	if err != nil {
		return nil, fmt.Errorf("run %q of workflow %q: %w", runID, w.name, err)
	}
	return state, nil
}

// Resume re-enters a suspended step of a run.
//
// Deprecated: use Run.Resume on the run returned by CreateRun.
func (w *Workflow) Resume(ctx context.Context, runID, stepID string, resumeContext map[string]any) (*RunResult, error) {
	w.logger.Warn("workflow.Resume is deprecated, use run.Resume", "run_id", runID)
	run, err := w.getOrLoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Resume(ctx, ResumeOptions{StepID: stepID, Context: resumeContext})
}

// ResumeWithEvent delivers a named event to a suspended event step.
//
// Deprecated: use Run.ResumeWithEvent.
func (w *Workflow) ResumeWithEvent(ctx context.Context, runID, eventName string, data any) (*RunResult, error) {
	w.logger.Warn("workflow.ResumeWithEvent is deprecated, use run.ResumeWithEvent", "run_id", runID)
	run, err := w.getOrLoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.ResumeWithEvent(ctx, eventName, data)
}

// Watch registers a transition callback on a run.
//
// Deprecated: use Run.Watch.
func (w *Workflow) Watch(runID string, fn WatchFunc) (func(), error) {
	w.logger.Warn("workflow.Watch is deprecated, use run.Watch", "run_id", runID)
	run, ok := w.GetRun(runID)
	if !ok {
		return nil, fmt.Errorf("run %q of workflow %q: %w", runID, w.name, ErrRunNotFound)
	}
	return run.Watch(fn), nil
}

func firstConfig(configs []*StepConfig) *StepConfig {
	if len(configs) > 0 && configs[0] != nil {
		return configs[0]
	}
	return nil
}
