package mastra

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mastra-ai/mastra/slogger"
	"github.com/mastra-ai/mastra/workflow"
)

// Options configures a Mastra instance.
type Options struct {
	Logger  slogger.Logger
	Storage workflow.SnapshotStore

	// Workflows registered at construction time. More can be added later
	// with RegisterWorkflow.
	Workflows []*workflow.Workflow
}

// Mastra is the top-level registry tying workflows to shared infrastructure:
// one logger and one snapshot store serve every workflow created through it.
type Mastra struct {
	logger  slogger.Logger
	storage workflow.SnapshotStore

	mutex     sync.RWMutex
	workflows map[string]*workflow.Workflow
}

// New creates a Mastra instance. A nil logger discards output and a nil
// storage keeps snapshots in memory.
func New(opts Options) (*Mastra, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	storage := opts.Storage
	if storage == nil {
		storage = workflow.NewInMemorySnapshotStore()
	}
	m := &Mastra{
		logger:    logger,
		storage:   storage,
		workflows: make(map[string]*workflow.Workflow),
	}
	for _, wf := range opts.Workflows {
		if err := m.RegisterWorkflow(wf); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mastra) Logger() slogger.Logger { return m.logger }

func (m *Mastra) Storage() workflow.SnapshotStore { return m.storage }

// NewWorkflow creates a workflow wired to this instance's logger, storage,
// and condition-function handle, and registers it under its name.
func (m *Mastra) NewWorkflow(opts workflow.WorkflowOptions) (*workflow.Workflow, error) {
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	if opts.SnapshotStore == nil {
		opts.SnapshotStore = m.storage
	}
	if opts.Mastra == nil {
		opts.Mastra = m
	}
	wf := workflow.NewWorkflow(opts)
	if err := m.RegisterWorkflow(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// RegisterWorkflow adds a workflow to the registry. Names must be unique.
func (m *Mastra) RegisterWorkflow(wf *workflow.Workflow) error {
	if wf == nil {
		return fmt.Errorf("workflow is required")
	}
	if wf.Name() == "" {
		return fmt.Errorf("workflow name is required")
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.workflows[wf.Name()]; ok {
		return fmt.Errorf("workflow %q is already registered", wf.Name())
	}
	m.workflows[wf.Name()] = wf
	return nil
}

// GetWorkflow returns a registered workflow by name.
func (m *Mastra) GetWorkflow(name string) (*workflow.Workflow, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	wf, ok := m.workflows[name]
	if !ok {
		return nil, fmt.Errorf("workflow %q is not registered", name)
	}
	return wf, nil
}

// Workflows returns the registered workflows sorted by name.
func (m *Mastra) Workflows() []*workflow.Workflow {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.workflows))
	for name := range m.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	workflows := make([]*workflow.Workflow, 0, len(names))
	for _, name := range names {
		workflows = append(workflows, m.workflows[name])
	}
	return workflows
}

// RunState loads the state of any run by workflow name, from memory or the
// shared snapshot store.
func (m *Mastra) RunState(ctx context.Context, workflowName, runID string) (*workflow.RunState, error) {
	wf, err := m.GetWorkflow(workflowName)
	if err != nil {
		return nil, err
	}
	return wf.State(ctx, runID)
}
