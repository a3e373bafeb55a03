package workflow

import (
	"time"
)

// RunState is the serializable snapshot of a run: the durable contract any
// persistence backend must round-trip exactly.
type RunState struct {
	// Value maps each step id to its state machine state name.
	Value map[string]string `json:"value"`

	Context *WorkflowContext `json:"context"`

	// ActivePaths lists the currently active branches.
	ActivePaths []ActivePath `json:"activePaths"`

	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`

	// ChildStates holds nested state for loop sub-machines, keyed by the
	// loop body's step id.
	ChildStates map[string]map[string]any `json:"childStates,omitempty"`

	// SuspendedSteps maps suspended step ids to their state name.
	SuspendedSteps map[string]string `json:"suspendedSteps,omitempty"`
}

// Copy returns an independent copy of the run state.
func (s *RunState) Copy() *RunState {
	value := make(map[string]string, len(s.Value))
	for k, v := range s.Value {
		value[k] = v
	}
	paths := make([]ActivePath, len(s.ActivePaths))
	copy(paths, s.ActivePaths)
	var childStates map[string]map[string]any
	if s.ChildStates != nil {
		childStates = make(map[string]map[string]any, len(s.ChildStates))
		for k, v := range s.ChildStates {
			child := make(map[string]any, len(v))
			for ck, cv := range v {
				child[ck] = cv
			}
			childStates[k] = child
		}
	}
	var suspended map[string]string
	if s.SuspendedSteps != nil {
		suspended = make(map[string]string, len(s.SuspendedSteps))
		for k, v := range s.SuspendedSteps {
			suspended[k] = v
		}
	}
	var wctx *WorkflowContext
	if s.Context != nil {
		wctx = s.Context.Copy()
	}
	return &RunState{
		Value:          value,
		Context:        wctx,
		ActivePaths:    paths,
		RunID:          s.RunID,
		Timestamp:      s.Timestamp,
		ChildStates:    childStates,
		SuspendedSteps: suspended,
	}
}
