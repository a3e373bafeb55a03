package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mastra-ai/mastra/schema"
	"github.com/mastra-ai/mastra/slogger"
	"github.com/mastra-ai/mastra/workflow"
)

// BuildOptions wires declarative definitions to runtime dependencies.
type BuildOptions struct {
	Logger slogger.Logger
	Store  workflow.SnapshotStore

	// Handlers resolves step handler names from the definitions.
	Handlers map[string]workflow.StepHandler

	// Mastra is passed through to condition functions.
	Mastra any
}

// Build constructs all workflows declared in the config.
func (c *Config) Build(opts BuildOptions) ([]*workflow.Workflow, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	workflows := make([]*workflow.Workflow, 0, len(c.Workflows))
	for _, def := range c.Workflows {
		wf, err := buildWorkflow(def, opts)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func buildWorkflow(def Workflow, opts BuildOptions) (*workflow.Workflow, error) {
	events := make(map[string]*workflow.Event, len(def.Events))
	for name, event := range def.Events {
		events[name] = &workflow.Event{Schema: buildSchema(event.Schema)}
	}
	wf := workflow.NewWorkflow(workflow.WorkflowOptions{
		Name:          def.Name,
		TriggerSchema: buildSchema(def.TriggerSchema),
		Logger:        opts.Logger,
		SnapshotStore: opts.Store,
		Mastra:        opts.Mastra,
		Events:        events,
	})

	built := make(map[string]*workflow.Step)
	first := true
	for _, stepDef := range def.Steps {
		if stepDef.AfterEvent != "" {
			wf.AfterEvent(stepDef.AfterEvent)
			continue
		}
		step, err := buildStep(stepDef, opts)
		if err != nil {
			return nil, err
		}
		built[stepDef.ID] = step

		cfg := &workflow.StepConfig{
			When:      buildCondition(stepDef.When),
			Variables: buildVariables(stepDef.Variables),
		}

		switch {
		case stepDef.Loop != nil:
			cond := buildCondition(stepDef.Loop.Condition)
			if stepDef.Loop.Type == "until" {
				wf.Until(cond, step)
			} else {
				wf.While(cond, step)
			}
		case len(stepDef.After) > 0:
			deps := make([]*workflow.Step, 0, len(stepDef.After))
			for _, dep := range stepDef.After {
				depStep, ok := built[dep]
				if !ok {
					return nil, fmt.Errorf("step %q joins on unknown step %q", stepDef.ID, dep)
				}
				deps = append(deps, depStep)
			}
			wf.After(deps...).Step(step, cfg)
		case first || stepDef.Root:
			wf.Step(step, cfg)
		default:
			wf.Then(step, cfg)
		}
		first = false
	}

	wf.Commit()
	if err := wf.BuildError(); err != nil {
		return nil, err
	}
	return wf, nil
}

func buildStep(def Step, opts BuildOptions) (*workflow.Step, error) {
	var handler workflow.StepHandler
	if def.Handler != "" {
		fn, ok := opts.Handlers[def.Handler]
		if !ok {
			return nil, fmt.Errorf("step %q references unknown handler %q (known: %s)",
				def.ID, def.Handler, strings.Join(handlerNames(opts.Handlers), ", "))
		}
		handler = fn
	}
	var retry *workflow.RetryConfig
	if def.Retry != nil {
		retry = &workflow.RetryConfig{Attempts: def.Retry.Attempts}
		if def.Retry.Delay != "" {
			delay, err := time.ParseDuration(def.Retry.Delay)
			if err != nil {
				return nil, fmt.Errorf("step %q: invalid retry delay %q: %w", def.ID, def.Retry.Delay, err)
			}
			retry.Delay = delay
		}
	}
	return workflow.NewStep(workflow.StepOptions{
		ID:           def.ID,
		Description:  def.Description,
		InputSchema:  buildSchema(def.InputSchema),
		OutputSchema: buildSchema(def.OutputSchema),
		Payload:      def.Payload,
		RetryConfig:  retry,
		Handler:      handler,
	}), nil
}

func buildSchema(def *Schema) *schema.Schema {
	if def == nil {
		return nil
	}
	s := &schema.Schema{
		Type:     def.Type,
		Required: def.Required,
	}
	if len(def.Properties) > 0 {
		s.Properties = make(map[string]*schema.Property, len(def.Properties))
		for name, prop := range def.Properties {
			s.Properties[name] = &schema.Property{
				Type:        prop.Type,
				Description: prop.Description,
				Enum:        prop.Enum,
			}
		}
	}
	return s
}

func buildCondition(def *Condition) *workflow.Condition {
	if def == nil {
		return nil
	}
	cond := &workflow.Condition{}
	switch {
	case len(def.And) > 0:
		for _, child := range def.And {
			cond.And = append(cond.And, buildCondition(child))
		}
	case len(def.Or) > 0:
		for _, child := range def.Or {
			cond.Or = append(cond.Or, buildCondition(child))
		}
	case def.Not != nil:
		cond.Not = buildCondition(def.Not)
	default:
		cond.Ref = buildRef(def.Ref)
		cond.Query = def.Query
	}
	return cond
}

func buildVariables(vars map[string]string) map[string]*workflow.StepRef {
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]*workflow.StepRef, len(vars))
	for name, ref := range vars {
		out[name] = buildRef(ref)
	}
	return out
}

// buildRef splits "stepId.path" at the first dot; a bare step id references
// the whole output.
func buildRef(ref string) *workflow.StepRef {
	if ref == "" {
		return nil
	}
	if i := strings.Index(ref, "."); i >= 0 {
		return &workflow.StepRef{Step: ref[:i], Path: ref[i+1:]}
	}
	return &workflow.StepRef{Step: ref}
}

func handlerNames(handlers map[string]workflow.StepHandler) []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
