package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mastra-ai/mastra/slogger"
)

// ErrRunNotFound indicates that a run id is neither held in memory nor
// present in the snapshot store.
var ErrRunNotFound = errors.New("workflow run not found")

// StepTransition describes one state change of one step, delivered to
// watchers registered via Run.Watch, together with the aggregate run state
// captured just after the transition.
type StepTransition struct {
	RunID     string
	StepID    string
	State     StepState
	Result    *StepResult // nil for states that carry no result
	RunState  *RunState
	Timestamp time.Time
}

// WatchFunc receives step transitions. Callbacks run synchronously on the
// run's dispatcher and must not call back into the run; RunState is an
// independent copy and safe to retain.
type WatchFunc func(transition StepTransition)

// stepUpdate is the only message type executors and timers send back to the
// dispatcher. Exactly one update is sent per unit of inflight work.
type stepUpdate struct {
	stepID string
	result *StepResult // nil for timer expiry
}

type readiness int

const (
	readyBlocked readiness = iota
	readyExecute
	readySkip
	readyLimbo
	readyWait
)

// StartOptions configures Run.Start.
type StartOptions struct {
	TriggerData map[string]any
}

// ResumeOptions configures Run.Resume.
type ResumeOptions struct {
	StepID string

	// Context is merged into the resumed step's input data.
	Context map[string]any
}

// Run is a single execution of a workflow. All step scheduling is serialized
// through a dispatcher loop: executors run concurrently but report back over
// a channel, so run state is never mutated from two goroutines at once.
type Run struct {
	workflow     *Workflow
	runID        string
	logger       slogger.Logger
	store        SnapshotStore
	events       map[string]*Event
	waitInterval time.Duration

	// driveMutex serializes Start and Resume so only one dispatcher loop
	// is draining updates at a time.
	driveMutex sync.Mutex

	mutex       sync.Mutex
	machines    map[string]*stepMachine
	preds       map[string][]string
	succs       map[string][]*StepNode
	wctx        *WorkflowContext
	resumeInput map[string]map[string]any
	updates     chan stepUpdate
	inflight    int
	started     bool

	watcherMutex sync.Mutex
	watcherSeq   int
	watchers     map[int]WatchFunc
}

func newRun(w *Workflow, opts CreateRunOptions) *Run {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	events := make(map[string]*Event, len(w.events)+len(opts.Events))
	for name, event := range w.events {
		events[name] = event
	}
	for name, event := range opts.Events {
		events[name] = event
	}
	r := &Run{
		workflow:     w,
		runID:        runID,
		logger:       w.logger.With("run_id", runID),
		store:        w.store,
		events:       events,
		waitInterval: w.waitInterval,
		machines:     make(map[string]*stepMachine),
		preds:        make(map[string][]string),
		succs:        make(map[string][]*StepNode),
		wctx: &WorkflowContext{
			Steps:    make(map[string]StepResult),
			Attempts: make(map[string]int),
		},
		resumeInput: make(map[string]map[string]any),
		watchers:    make(map[int]WatchFunc),
	}
	r.buildIndex()
	r.updates = make(chan stepUpdate, 4*len(r.machines)+16)
	return r
}

func (r *Run) RunID() string { return r.runID }

func (r *Run) Workflow() *Workflow { return r.workflow }

// buildIndex flattens the main and subscriber graphs into per-step machines
// plus predecessor and successor indexes. Loop re-entry edges contribute to
// successors only; they never gate a step's readiness.
func (r *Run) buildIndex() {
	register := func(node *StepNode) {
		id := node.Step.id
		if _, ok := r.machines[id]; ok {
			return
		}
		r.machines[id] = newStepMachine(node, r.workflow.defaultRetry)
	}
	index := func(graph *StepGraph, rootPreds []string) {
		for _, node := range graph.Initial {
			register(node)
			r.preds[node.Step.id] = append(r.preds[node.Step.id], rootPreds...)
		}
		for from, nodes := range graph.Adjacency {
			for _, node := range nodes {
				r.succs[from] = append(r.succs[from], node)
				if node.Config.loopReentry {
					continue
				}
				register(node)
				r.preds[node.Step.id] = append(r.preds[node.Step.id], from)
			}
		}
	}
	index(r.workflow.graph, nil)
	for key, graph := range r.workflow.subscribers {
		index(graph, SplitCompoundKey(key))
	}
}

// Start validates the trigger data and executes the workflow to resolution:
// it returns once every step is terminal, suspended, or blocked behind a
// suspended step. Suspended branches surface in the result's ActivePaths.
func (r *Run) Start(ctx context.Context, opts StartOptions) (*RunResult, error) {
	r.driveMutex.Lock()
	defer r.driveMutex.Unlock()

	r.mutex.Lock()
	if r.started {
		r.mutex.Unlock()
		return nil, fmt.Errorf("run %q already started", r.runID)
	}
	if s := r.workflow.triggerSchema; s != nil {
		if err := s.Validate(opts.TriggerData); err != nil {
			r.mutex.Unlock()
			return nil, fmt.Errorf("trigger data: %w", err)
		}
	}
	r.started = true
	r.wctx.TriggerData = opts.TriggerData
	r.persistLocked(ctx)
	r.mutex.Unlock()

	r.logger.Info("workflow run started", "workflow", r.workflow.name)
	return r.drive(ctx)
}

// Resume re-arms a suspended step, merging the given context into its input
// data, and drives the run until it settles again.
func (r *Run) Resume(ctx context.Context, opts ResumeOptions) (*RunResult, error) {
	r.driveMutex.Lock()
	defer r.driveMutex.Unlock()

	r.mutex.Lock()
	machine, ok := r.machines[opts.StepID]
	if !ok {
		r.mutex.Unlock()
		return nil, fmt.Errorf("run %q has no step %q", r.runID, opts.StepID)
	}
	if machine.state != StateSuspended {
		r.mutex.Unlock()
		return nil, fmt.Errorf("step %q is not suspended (state %s)", opts.StepID, machine.state)
	}
	if len(opts.Context) > 0 {
		input := r.resumeInput[opts.StepID]
		if input == nil {
			input = make(map[string]any, len(opts.Context))
			r.resumeInput[opts.StepID] = input
		}
		if r.wctx.InputData == nil {
			r.wctx.InputData = make(map[string]any, len(opts.Context))
		}
		for k, v := range opts.Context {
			input[k] = v
			r.wctx.InputData[k] = v
		}
	}
	if err := machine.transition(StatePending); err != nil {
		r.mutex.Unlock()
		return nil, err
	}
	r.persistLocked(ctx)
	r.mutex.Unlock()

	r.logger.Info("resuming step", "step", opts.StepID)
	return r.drive(ctx)
}

// ResumeWithEvent validates the payload against the named event's schema and
// resumes the event's synthetic step with the payload under "resumedEvent".
func (r *Run) ResumeWithEvent(ctx context.Context, eventName string, data any) (*RunResult, error) {
	event, ok := r.events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %q is not registered on workflow %q", eventName, r.workflow.name)
	}
	if event != nil && event.Schema != nil {
		payload, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("event %q payload must be a map to match its schema", eventName)
		}
		if err := event.Schema.Validate(payload); err != nil {
			return nil, fmt.Errorf("event %q payload: %w", eventName, err)
		}
	}
	return r.Resume(ctx, ResumeOptions{
		StepID:  EventStepID(eventName),
		Context: map[string]any{"resumedEvent": data},
	})
}

// Watch registers a transition callback and returns its unsubscribe
// function. Callbacks fire synchronously, in transition order.
func (r *Run) Watch(fn WatchFunc) func() {
	r.watcherMutex.Lock()
	r.watcherSeq++
	id := r.watcherSeq
	r.watchers[id] = fn
	r.watcherMutex.Unlock()
	return func() {
		r.watcherMutex.Lock()
		delete(r.watchers, id)
		r.watcherMutex.Unlock()
	}
}

// State builds a point-in-time snapshot of the run.
func (r *Run) State() *RunState {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stateLocked()
}

func (r *Run) stateLocked() *RunState {
	value := make(map[string]string, len(r.machines))
	var childStates map[string]map[string]any
	var suspended map[string]string
	for id, machine := range r.machines {
		value[id] = string(machine.state)
		if machine.node.Config.LoopLabel != "" {
			if childStates == nil {
				childStates = make(map[string]map[string]any)
			}
			childStates[id] = map[string]any{"iterations": machine.iterations}
		}
		if machine.state == StateSuspended {
			if suspended == nil {
				suspended = make(map[string]string)
			}
			suspended[id] = string(StateSuspended)
		}
	}
	return &RunState{
		Value:          value,
		Context:        r.wctx.Copy(),
		ActivePaths:    r.activePathsLocked(),
		RunID:          r.runID,
		Timestamp:      time.Now(),
		ChildStates:    childStates,
		SuspendedSteps: suspended,
	}
}

// hydrate restores run state from the snapshot store. Steps captured
// mid-flight (executing or waiting) are re-armed as pending.
func (r *Run) hydrate(ctx context.Context) error {
	state, err := r.store.LoadSnapshot(ctx, r.workflow.name, r.runID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return fmt.Errorf("run %q of workflow %q: %w", r.runID, r.workflow.name, ErrRunNotFound)
		}
		return fmt.Errorf("load snapshot for run %q: %w", r.runID, err)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if state.Context != nil {
		r.wctx = state.Context.Copy()
		if r.wctx.Steps == nil {
			r.wctx.Steps = make(map[string]StepResult)
		}
		if r.wctx.Attempts == nil {
			r.wctx.Attempts = make(map[string]int)
		}
	}
	for id, name := range state.Value {
		machine, ok := r.machines[id]
		if !ok {
			continue
		}
		restored := StepState(name)
		if restored == StateExecuting || restored == StateWaiting {
			restored = StatePending
		}
		machine.state = restored
	}
	for id, remaining := range r.wctx.Attempts {
		if machine, ok := r.machines[id]; ok {
			machine.attempts = remaining
		}
	}
	for id, child := range state.ChildStates {
		if machine, ok := r.machines[id]; ok {
			if n, ok := child["iterations"].(float64); ok {
				machine.iterations = int(n)
			} else if n, ok := child["iterations"].(int); ok {
				machine.iterations = n
			}
		}
	}
	r.started = true
	return nil
}

// drive is the dispatcher loop: schedule everything ready, then absorb one
// update at a time until no work is inflight.
func (r *Run) drive(ctx context.Context) (*RunResult, error) {
	r.mutex.Lock()
	r.scheduleReadyLocked(ctx)
	inflight := r.inflight
	r.mutex.Unlock()

	for inflight > 0 {
		select {
		case update := <-r.updates:
			r.mutex.Lock()
			r.inflight--
			r.handleUpdateLocked(ctx, update)
			r.scheduleReadyLocked(ctx)
			inflight = r.inflight
			r.mutex.Unlock()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mutex.Lock()
	result := &RunResult{
		TriggerData: r.wctx.TriggerData,
		Results:     r.wctx.Copy().Steps,
		RunID:       r.runID,
		ActivePaths: r.activePathsLocked(),
	}
	r.mutex.Unlock()
	r.logger.Info("workflow run settled", "active_paths", len(result.ActivePaths))
	return result, nil
}

func (r *Run) activePathsLocked() []ActivePath {
	ids := make([]string, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var paths []ActivePath
	for _, id := range ids {
		switch r.machines[id].state {
		case StateSuspended, StateWaiting, StatePending, StateExecuting:
			paths = append(paths, ActivePath{
				StepPath: []string{id},
				StepID:   id,
				Status:   string(r.machines[id].state),
			})
		}
	}
	return paths
}

// scheduleReadyLocked repeatedly sweeps pending machines in stable order
// until a full pass makes no progress. Each sweep may complete steps without
// executing them (skips and limbo), so the fixpoint loop is required.
func (r *Run) scheduleReadyLocked(ctx context.Context) {
	ids := make([]string, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for {
		progressed := false
		for _, id := range ids {
			machine := r.machines[id]
			if machine.state != StatePending {
				continue
			}
			ready, condErr := r.readinessLocked(machine)
			if condErr != nil {
				r.moveLocked(machine, StateFailed)
				r.recordResultLocked(ctx, id, failedResult(condErr))
				progressed = true
				continue
			}
			switch ready {
			case readyExecute:
				r.startStepLocked(ctx, machine)
				progressed = true
			case readySkip:
				r.moveLocked(machine, StateSkipped)
				r.recordResultLocked(ctx, id, skippedResult())
				progressed = true
			case readyLimbo:
				r.moveLocked(machine, StateLimbo)
				r.notifyLocked(id, StateLimbo, nil)
				progressed = true
			case readyWait:
				r.moveLocked(machine, StateWaiting)
				r.recordResultLocked(ctx, id, waitingResult())
				r.startTimerLocked(id, r.waitInterval)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// readinessLocked decides what to do with a pending machine. A non-nil error
// means its condition failed and the step fails without executing.
func (r *Run) readinessLocked(machine *stepMachine) (readiness, error) {
	sawFailure := false
	for _, dep := range r.preds[machine.stepID()] {
		switch r.machines[dep].state {
		case StateCompleted:
		case StateFailed, StateSkipped:
			sawFailure = true
		default:
			return readyBlocked, nil
		}
	}
	cond := machine.node.Config.When
	if sawFailure {
		// A function condition may opt in to running after upstream
		// failure; everything else cascades the skip.
		outcome, err := evaluateCondition(cond, r.wctx, r.workflow.mastra)
		if err == nil && outcome == OutcomeContinueFailed {
			return readyExecute, nil
		}
		return readySkip, nil
	}
	if cond == nil {
		return readyExecute, nil
	}
	outcome, err := evaluateCondition(cond, r.wctx, r.workflow.mastra)
	if err != nil {
		return readyBlocked, err
	}
	switch outcome {
	case OutcomeContinue, OutcomeContinueFailed:
		return readyExecute, nil
	case OutcomeWaiting:
		return readyWait, nil
	case OutcomeLimbo:
		return readyLimbo, nil
	default: // abort
		if machine.node.Config.loopGate {
			return readyLimbo, nil
		}
		return readySkip, nil
	}
}

func (r *Run) startStepLocked(ctx context.Context, machine *stepMachine) {
	if err := machine.transition(StateExecuting); err != nil {
		r.logger.Error("scheduling error", "error", err)
		return
	}
	id := machine.stepID()
	sctx := &StepContext{
		RunID:       r.runID,
		StepID:      id,
		TriggerData: r.wctx.Copy().TriggerData,
		InputData:   r.stepInputLocked(machine.node),
		Logger:      r.logger.With("step", id),
		steps:       r.wctx.Copy().Steps,
	}
	r.inflight++
	r.notifyLocked(id, StateExecuting, nil)
	go r.executeStep(ctx, machine.node, sctx)
}

// stepInputLocked assembles a step's input: static payload, then resolved
// variable mappings, then any context injected by a resume.
func (r *Run) stepInputLocked(node *StepNode) map[string]any {
	input := make(map[string]any)
	for k, v := range node.Step.payload {
		input[k] = v
	}
	for name, ref := range node.Config.Variables {
		if value, ok := resolveRef(ref, r.wctx); ok {
			input[name] = value
		}
	}
	for k, v := range r.resumeInput[node.Step.id] {
		input[k] = v
	}
	return input
}

// executeStep runs off the dispatcher goroutine. It reports exactly one
// update and never touches run state directly.
func (r *Run) executeStep(ctx context.Context, node *StepNode, sctx *StepContext) {
	step := node.Step
	result := r.runHandler(ctx, step, sctx)
	r.updates <- stepUpdate{stepID: step.id, result: &result}
}

func (r *Run) runHandler(ctx context.Context, step *Step, sctx *StepContext) StepResult {
	if err := step.validateInput(sctx.InputData); err != nil {
		return failedResult(err)
	}
	output, err := invokeHandler(ctx, step, sctx)
	if sctx.suspended {
		return suspendedResult(sctx.suspendPayload)
	}
	if err != nil {
		return failedResult(err)
	}
	if err := step.validateOutput(output); err != nil {
		return failedResult(err)
	}
	if output == nil {
		output = map[string]any{}
	}
	return successResult(output)
}

func invokeHandler(ctx context.Context, step *Step, sctx *StepContext) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("step %q panicked: %v", step.id, r)
		}
	}()
	return step.handler(ctx, sctx)
}

func (r *Run) handleUpdateLocked(ctx context.Context, update stepUpdate) {
	machine, ok := r.machines[update.stepID]
	if !ok {
		return
	}
	if update.result == nil {
		// Timer expiry: re-arm a waiting machine for re-evaluation.
		if machine.state == StateWaiting {
			r.moveLocked(machine, StatePending)
		}
		return
	}
	result := *update.result
	id := update.stepID
	switch result.Status {
	case StepStatusSuccess:
		r.moveLocked(machine, StateCompleted)
		r.recordResultLocked(ctx, id, result)
		r.logger.Debug("step completed", "step", id)
		r.handleLoopEdgesLocked(id)
	case StepStatusSuspended:
		r.moveLocked(machine, StateSuspended)
		r.recordResultLocked(ctx, id, result)
		r.logger.Info("step suspended", "step", id)
	case StepStatusFailed:
		if machine.attempts > 0 {
			machine.attempts--
			r.wctx.Attempts[id] = machine.attempts
			r.logger.Warn("step failed, retrying",
				"step", id, "remaining_attempts", machine.attempts, "error", result.Error)
			r.moveLocked(machine, StateWaiting)
			delay := r.retryDelay(machine.node)
			if delay > 0 {
				r.startTimerLocked(id, delay)
			} else {
				r.moveLocked(machine, StatePending)
			}
			return
		}
		r.moveLocked(machine, StateFailed)
		r.recordResultLocked(ctx, id, result)
		r.logger.Error("step failed", "step", id, "error", result.Error)
	}
}

// moveLocked applies a transition the dispatcher believes is valid; a
// rejected move indicates an engine bug and is logged rather than dropped
// silently.
func (r *Run) moveLocked(machine *stepMachine, to StepState) {
	if err := machine.transition(to); err != nil {
		r.logger.Error("invalid step transition", "error", err)
		machine.state = to
	}
}

func (r *Run) retryDelay(node *StepNode) time.Duration {
	if retry := node.Step.retryConfig; retry != nil {
		return retry.Delay
	}
	if retry := r.workflow.defaultRetry; retry != nil {
		return retry.Delay
	}
	return 0
}

// handleLoopEdgesLocked processes a completed step's loop-specific
// successors: a re-entry edge whose guard holds resets the loop body and the
// check step for another iteration, and limbo successors are re-armed so
// their guards get a fresh evaluation.
func (r *Run) handleLoopEdgesLocked(completedID string) {
	for _, node := range r.succs[completedID] {
		succID := node.Step.id
		if node.Config.loopReentry {
			if evaluateBool(node.Config.When, r.wctx) {
				body := r.machines[succID]
				body.reset(r.workflow.defaultRetry)
				r.moveLocked(r.machines[completedID], StatePending)
				r.logger.Debug("loop iteration",
					"step", succID, "iteration", body.iterations)
			}
			continue
		}
		if machine, ok := r.machines[succID]; ok && machine.state == StateLimbo {
			r.moveLocked(machine, StatePending)
		}
	}
}

func (r *Run) startTimerLocked(stepID string, delay time.Duration) {
	r.inflight++
	time.AfterFunc(delay, func() {
		r.updates <- stepUpdate{stepID: stepID}
	})
}

// recordResultLocked stores a step result, persists the snapshot, and
// notifies watchers. Every observable transition funnels through here.
func (r *Run) recordResultLocked(ctx context.Context, stepID string, result StepResult) {
	r.wctx.Steps[stepID] = result
	r.persistLocked(ctx)
	r.notifyLocked(stepID, r.machines[stepID].state, &result)
}

// persistLocked writes the current snapshot. Persistence failures are logged
// and do not interrupt execution; the next transition retries.
func (r *Run) persistLocked(ctx context.Context) {
	state := r.stateLocked()
	if err := r.store.SaveSnapshot(ctx, r.workflow.name, r.runID, state); err != nil {
		r.logger.Error("failed to persist run snapshot", "error", err)
	}
}

func (r *Run) notifyLocked(stepID string, state StepState, result *StepResult) {
	r.watcherMutex.Lock()
	fns := make([]WatchFunc, 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.watcherMutex.Unlock()
	if len(fns) == 0 {
		return
	}
	transition := StepTransition{
		RunID:     r.runID,
		StepID:    stepID,
		State:     state,
		Result:    result,
		RunState:  r.stateLocked(),
		Timestamp: time.Now(),
	}
	for _, fn := range fns {
		fn(transition)
	}
}
