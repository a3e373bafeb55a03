package workflow

import (
	"sort"
	"strings"
)

// LoopType distinguishes the two loop builders.
type LoopType string

const (
	LoopTypeWhile LoopType = "when"
	LoopTypeUntil LoopType = "until"
)

// StepConfig is the per-placement configuration of a step in the graph: its
// gating condition, variable mappings, and loop metadata. Configs are
// created during graph construction and are immutable during execution.
type StepConfig struct {
	// When gates the step's eligibility.
	When *Condition

	// Variables maps input fields to upstream step output paths, or to the
	// trigger data via the reserved "trigger" step name.
	Variables map[string]*StepRef

	LoopLabel string
	LoopType  LoopType

	// loopReentry marks the synthetic edge that re-enters a loop body; it
	// is excluded from dependency gating.
	loopReentry bool

	// loopGate marks the loop-finished branch: while its guard is false the
	// step stays pending (limbo) instead of being skipped, because the
	// guard can become true on a later iteration.
	loopGate bool
}

// StepNode is a graph vertex: a step plus its placement config.
type StepNode struct {
	Step   *Step
	Config *StepConfig
}

func newStepNode(step *Step, config *StepConfig) *StepNode {
	if config == nil {
		config = &StepConfig{}
	}
	return &StepNode{Step: step, Config: config}
}

// StepGraph maps a step id to the ordered successors that may execute when
// that step finishes. The Initial sequence holds root-level steps.
type StepGraph struct {
	Initial   []*StepNode
	Adjacency map[string][]*StepNode
}

func NewStepGraph() *StepGraph {
	return &StepGraph{
		Adjacency: make(map[string][]*StepNode),
	}
}

// Nodes returns every node in the graph, initial entries first.
func (g *StepGraph) Nodes() []*StepNode {
	nodes := make([]*StepNode, 0, len(g.Initial)+len(g.Adjacency))
	nodes = append(nodes, g.Initial...)
	keys := make([]string, 0, len(g.Adjacency))
	for key := range g.Adjacency {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		nodes = append(nodes, g.Adjacency[key]...)
	}
	return nodes
}

// SubscriberGraph maps a compound key ("after ALL of these steps") to the
// nested graph of steps gated on that join.
type SubscriberGraph map[string]*StepGraph

const compoundKeySeparator = "&&"

// CompoundKey builds the canonical key for a set of predecessor step ids.
func CompoundKey(stepIDs ...string) string {
	ids := make([]string, len(stepIDs))
	copy(ids, stepIDs)
	sort.Strings(ids)
	return strings.Join(ids, compoundKeySeparator)
}

// SplitCompoundKey returns the member step ids of a compound key.
func SplitCompoundKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, compoundKeySeparator)
}
