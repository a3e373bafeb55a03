package workflow

import "fmt"

// StepState is the scheduling state of a single step within a run. It is a
// superset of StepResult statuses: pending and executing never appear in
// results, and a completed machine surfaces as a success result.
type StepState string

const (
	StatePending   StepState = "pending"
	StateExecuting StepState = "executing"
	StateWaiting   StepState = "waiting"
	StateCompleted StepState = "completed"
	StateFailed    StepState = "failed"
	StateSuspended StepState = "suspended"
	StateSkipped   StepState = "skipped"
	// StateLimbo marks a branch whose guard is permanently unresolved, such
	// as the untaken arm of a loop gate. Limbo steps do not block run
	// resolution and produce no result.
	StateLimbo StepState = "limbo"
)

// terminal reports whether the state can no longer change without an
// external nudge (resume, or a loop re-entry reset).
func (s StepState) terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateSkipped:
		return true
	}
	return false
}

// stepMachine tracks one step's progress through a run. All fields are owned
// by the run dispatcher goroutine; executors communicate through the run's
// update channel instead of touching the machine.
type stepMachine struct {
	node       *StepNode
	state      StepState
	attempts   int // remaining retry budget, counted down per failure
	iterations int // loop re-entries, starts at 0
}

func newStepMachine(node *StepNode, defaultRetry *RetryConfig) *stepMachine {
	attempts := 0
	if retry := node.Step.retryConfig; retry != nil {
		attempts = retry.Attempts
	} else if defaultRetry != nil {
		attempts = defaultRetry.Attempts
	}
	return &stepMachine{node: node, state: StatePending, attempts: attempts}
}

func (m *stepMachine) stepID() string {
	return m.node.Step.id
}

// transition moves the machine to a new state, guarding against moves the
// engine should never make.
func (m *stepMachine) transition(to StepState) error {
	from := m.state
	valid := false
	switch from {
	case StatePending:
		valid = to == StateExecuting || to == StateWaiting ||
			to == StateSkipped || to == StateLimbo || to == StateFailed
	case StateExecuting:
		// Waiting covers the retry backoff between attempts.
		valid = to == StateCompleted || to == StateFailed ||
			to == StateSuspended || to == StateWaiting
	case StateWaiting:
		valid = to == StatePending
	case StateSuspended:
		valid = to == StatePending
	case StateCompleted, StateFailed, StateSkipped:
		// Loop re-entry re-arms a finished body or check step.
		valid = to == StatePending
	case StateLimbo:
		valid = to == StatePending
	}
	if !valid {
		return fmt.Errorf("step %q: invalid transition %s -> %s", m.stepID(), from, to)
	}
	m.state = to
	return nil
}

// reset re-arms the machine for another loop iteration and restores its
// retry budget.
func (m *stepMachine) reset(defaultRetry *RetryConfig) {
	m.state = StatePending
	m.iterations++
	if retry := m.node.Step.retryConfig; retry != nil {
		m.attempts = retry.Attempts
	} else if defaultRetry != nil {
		m.attempts = defaultRetry.Attempts
	} else {
		m.attempts = 0
	}
}
