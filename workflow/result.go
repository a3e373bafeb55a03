package workflow

// StepStatus identifies the outcome variant of a StepResult.
type StepStatus string

const (
	StepStatusSuccess   StepStatus = "success"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSuspended StepStatus = "suspended"
	StepStatusWaiting   StepStatus = "waiting"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult is the authoritative per-step outcome for one run. It is a
// tagged variant: Status selects which of the remaining fields are
// meaningful. The struct is fully JSON serializable.
type StepResult struct {
	Status         StepStatus     `json:"status"`
	Output         map[string]any `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	SuspendPayload any            `json:"suspendPayload,omitempty"`
}

// Terminal reports whether the result can no longer change for this run,
// short of a loop re-entry or an explicit resume.
func (r StepResult) Terminal() bool {
	switch r.Status {
	case StepStatusSuccess, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

func successResult(output map[string]any) StepResult {
	return StepResult{Status: StepStatusSuccess, Output: output}
}

func failedResult(err error) StepResult {
	return StepResult{Status: StepStatusFailed, Error: err.Error()}
}

func suspendedResult(payload any) StepResult {
	return StepResult{Status: StepStatusSuspended, SuspendPayload: payload}
}

func skippedResult() StepResult {
	return StepResult{Status: StepStatusSkipped}
}

func waitingResult() StepResult {
	return StepResult{Status: StepStatusWaiting}
}

// ActivePath is a denormalized view of one currently active branch of a run,
// mirroring the nested structure of the step state machines.
type ActivePath struct {
	StepPath []string `json:"stepPath"`
	StepID   string   `json:"stepId"`
	Status   string   `json:"status"`
}

// RunResult is returned by Run.Start and Run.Resume once no step remains
// non-terminal and non-suspended.
type RunResult struct {
	TriggerData map[string]any        `json:"triggerData"`
	Results     map[string]StepResult `json:"results"`
	RunID       string                `json:"runId"`
	ActivePaths []ActivePath          `json:"activePaths"`
}

// WorkflowContext is the per-run mutable state. It is mutated exclusively by
// the run's dispatcher; step handlers receive a read view.
type WorkflowContext struct {
	Steps       map[string]StepResult `json:"steps"`
	TriggerData map[string]any        `json:"triggerData"`
	InputData   map[string]any        `json:"inputData"`
	Attempts    map[string]int        `json:"attempts"`
}

// Copy returns a deep-enough copy for safe concurrent reads. Step outputs
// themselves are shared; callers must not mutate them.
func (c *WorkflowContext) Copy() *WorkflowContext {
	steps := make(map[string]StepResult, len(c.Steps))
	for k, v := range c.Steps {
		steps[k] = v
	}
	trigger := make(map[string]any, len(c.TriggerData))
	for k, v := range c.TriggerData {
		trigger[k] = v
	}
	input := make(map[string]any, len(c.InputData))
	for k, v := range c.InputData {
		input[k] = v
	}
	attempts := make(map[string]int, len(c.Attempts))
	for k, v := range c.Attempts {
		attempts[k] = v
	}
	return &WorkflowContext{
		Steps:       steps,
		TriggerData: trigger,
		InputData:   input,
		Attempts:    attempts,
	}
}
