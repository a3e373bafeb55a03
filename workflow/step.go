package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mastra-ai/mastra/schema"
	"github.com/mastra-ai/mastra/slogger"
)

// StepHandler is the executable body of a step. It receives a read view of
// the run state plus an explicit suspend capability via StepContext.
type StepHandler func(ctx context.Context, sctx *StepContext) (map[string]any, error)

// RetryConfig controls how a failing step handler is retried.
// Attempts is the number of retries after the first execution, so
// Attempts = 2 yields at most 3 executions.
type RetryConfig struct {
	Attempts int           `json:"attempts"`
	Delay    time.Duration `json:"delay"`
}

// Step is a named unit of workflow work with an input/output contract and an
// executable handler. Steps are created once at workflow-definition time and
// are immutable thereafter.
type Step struct {
	id           string
	description  string
	inputSchema  *schema.Schema
	outputSchema *schema.Schema
	payload      map[string]any
	retryConfig  *RetryConfig
	handler      StepHandler
}

// StepOptions configures a new Step.
type StepOptions struct {
	ID           string
	Description  string
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema

	// Payload is static input merged under the step's input data.
	Payload map[string]any

	RetryConfig *RetryConfig
	Handler     StepHandler
}

// NewStep creates a Step. A nil handler is treated as a no-op that succeeds
// with an empty output.
func NewStep(opts StepOptions) *Step {
	if opts.ID == "" {
		panic("workflow: step id is required")
	}
	handler := opts.Handler
	if handler == nil {
		handler = func(ctx context.Context, sctx *StepContext) (map[string]any, error) {
			return map[string]any{}, nil
		}
	}
	return &Step{
		id:           opts.ID,
		description:  opts.Description,
		inputSchema:  opts.InputSchema,
		outputSchema: opts.OutputSchema,
		payload:      opts.Payload,
		retryConfig:  opts.RetryConfig,
		handler:      handler,
	}
}

func (s *Step) ID() string { return s.id }

func (s *Step) Description() string { return s.description }

func (s *Step) InputSchema() *schema.Schema { return s.inputSchema }

func (s *Step) OutputSchema() *schema.Schema { return s.outputSchema }

func (s *Step) Payload() map[string]any { return s.payload }

func (s *Step) RetryConfig() *RetryConfig { return s.retryConfig }

func (s *Step) validateInput(input map[string]any) error {
	if s.inputSchema == nil {
		return nil
	}
	if err := s.inputSchema.Validate(input); err != nil {
		return fmt.Errorf("step %q input: %w", s.id, err)
	}
	return nil
}

func (s *Step) validateOutput(output map[string]any) error {
	if s.outputSchema == nil {
		return nil
	}
	if err := s.outputSchema.Validate(output); err != nil {
		return fmt.Errorf("step %q output: %w", s.id, err)
	}
	return nil
}

// StepContext is the read view handed to a step handler, plus the explicit
// suspend capability. Handlers never mutate run state directly.
type StepContext struct {
	RunID       string
	StepID      string
	TriggerData map[string]any
	InputData   map[string]any
	Logger      slogger.Logger

	steps          map[string]StepResult
	suspended      bool
	suspendPayload any
}

// StepResult returns the recorded result for another step in this run.
func (c *StepContext) StepResult(stepID string) (StepResult, bool) {
	result, ok := c.steps[stepID]
	return result, ok
}

// StepOutput returns the success output of another step, or nil if the step
// has not completed successfully.
func (c *StepContext) StepOutput(stepID string) map[string]any {
	result, ok := c.steps[stepID]
	if !ok || result.Status != StepStatusSuccess {
		return nil
	}
	return result.Output
}

// Suspend pauses this step pending external input. The handler should return
// promptly after calling Suspend; any returned output is discarded.
func (c *StepContext) Suspend(payload any) error {
	c.suspended = true
	c.suspendPayload = payload
	return nil
}
