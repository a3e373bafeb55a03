package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ConditionOutcome is the control value produced by evaluating a step's
// "when" condition. Ordinary gating maps OutcomeContinue to eligible and
// OutcomeAbort to skipped; the remaining values drive branch and loop
// resolution.
type ConditionOutcome string

const (
	OutcomeContinue       ConditionOutcome = "continue"
	OutcomeContinueFailed ConditionOutcome = "continue_failed"
	OutcomeAbort          ConditionOutcome = "abort"
	OutcomeLimbo          ConditionOutcome = "limbo"

	// OutcomeWaiting parks the step in the waiting state; its condition is
	// re-evaluated on the run's wait interval.
	OutcomeWaiting ConditionOutcome = "waiting"
)

// BoolOutcome converts a plain boolean into a ConditionOutcome.
func BoolOutcome(ok bool) ConditionOutcome {
	if ok {
		return OutcomeContinue
	}
	return OutcomeAbort
}

// ConditionContext is passed to function conditions. Context is a read-only
// copy of the run state; Mastra is the embedding framework handle, if any.
type ConditionContext struct {
	Context *WorkflowContext
	Mastra  any
}

// ConditionFunc is a custom predicate. A returned error is captured as a
// condition failure for the guarded step only; it never aborts the run.
type ConditionFunc func(cc *ConditionContext) (ConditionOutcome, error)

// StepRef addresses a value produced earlier in the run: the output of a
// completed step, or the trigger data when Step is "trigger". Path is a
// dot-separated lookup inside that value; an empty path selects the whole
// value.
type StepRef struct {
	Step string `json:"step"`
	Path string `json:"path"`
}

// TriggerRef is the reserved step name addressing the run's trigger data.
const TriggerRef = "trigger"

// Condition is a declarative or custom "when" specification. Exactly one of
// the fields should be set; composites combine recursively with standard
// short-circuit boolean semantics.
type Condition struct {
	// Ref + Query resolve a value and evaluate it against query operators
	// ($eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $contains).
	Ref   *StepRef       `json:"ref,omitempty"`
	Query map[string]any `json:"query,omitempty"`

	And []*Condition `json:"and,omitempty"`
	Or  []*Condition `json:"or,omitempty"`
	Not *Condition   `json:"not,omitempty"`

	// Simple is the key-value form: each key is "<stepId>.<path>" and the
	// value is a literal (equality) or a nested query. Multiple entries
	// must all hold.
	Simple map[string]any `json:"simple,omitempty"`

	// Func is a custom predicate. FuncID is an optional symbolic identifier
	// recorded in snapshots in place of the function itself.
	Func   ConditionFunc `json:"-"`
	FuncID string        `json:"funcId,omitempty"`
}

// When builds a query condition on a step output path.
func When(stepID, path string, query map[string]any) *Condition {
	return &Condition{Ref: &StepRef{Step: stepID, Path: path}, Query: query}
}

// WhenTrigger builds a query condition on the trigger data.
func WhenTrigger(path string, query map[string]any) *Condition {
	return When(TriggerRef, path, query)
}

// WhenFunc wraps a custom predicate with a symbolic identifier.
func WhenFunc(id string, fn ConditionFunc) *Condition {
	return &Condition{Func: fn, FuncID: id}
}

// Negate returns the logical negation of a condition. Function conditions
// are wrapped: continue becomes abort and vice versa; the other control
// values pass through unchanged.
func Negate(cond *Condition) *Condition {
	if cond == nil {
		return nil
	}
	if cond.Func != nil {
		fn := cond.Func
		return &Condition{
			FuncID: "not:" + cond.FuncID,
			Func: func(cc *ConditionContext) (ConditionOutcome, error) {
				outcome, err := fn(cc)
				if err != nil {
					return outcome, err
				}
				switch outcome {
				case OutcomeContinue:
					return OutcomeAbort, nil
				case OutcomeAbort:
					return OutcomeContinue, nil
				default:
					return outcome, nil
				}
			},
		}
	}
	return &Condition{Not: cond}
}

// evaluateCondition resolves a condition against the current run state. A
// nil condition always continues. Missing referenced steps, outputs, or
// paths evaluate false; they never produce an error. Only function
// conditions can return an error, which the caller records as a
// condition-check failure for the guarded step.
func evaluateCondition(cond *Condition, wctx *WorkflowContext, mastra any) (outcome ConditionOutcome, err error) {
	if cond == nil {
		return OutcomeContinue, nil
	}
	if cond.Func != nil {
		defer func() {
			if r := recover(); r != nil {
				outcome = OutcomeAbort
				err = fmt.Errorf("condition %q panicked: %v", cond.FuncID, r)
			}
		}()
		return cond.Func(&ConditionContext{Context: wctx.Copy(), Mastra: mastra})
	}
	return BoolOutcome(evaluateBool(cond, wctx)), nil
}

// evaluateBool handles the declarative forms, which are purely boolean.
func evaluateBool(cond *Condition, wctx *WorkflowContext) bool {
	switch {
	case cond == nil:
		return true
	case len(cond.And) > 0:
		for _, child := range cond.And {
			if !evaluateBool(child, wctx) {
				return false
			}
		}
		return true
	case len(cond.Or) > 0:
		for _, child := range cond.Or {
			if evaluateBool(child, wctx) {
				return true
			}
		}
		return false
	case cond.Not != nil:
		return !evaluateBool(cond.Not, wctx)
	case cond.Ref != nil:
		value, ok := resolveRef(cond.Ref, wctx)
		if !ok {
			return false
		}
		return evaluateQuery(value, cond.Query)
	case len(cond.Simple) > 0:
		for key, expected := range cond.Simple {
			ref := parseRefKey(key)
			value, ok := resolveRef(ref, wctx)
			if !ok {
				return false
			}
			if query, isQuery := expected.(map[string]any); isQuery {
				if !evaluateQuery(value, query) {
					return false
				}
			} else if !valuesEqual(value, expected) {
				return false
			}
		}
		return true
	}
	return false
}

// parseRefKey splits "<stepId>.<path>" at the first dot. A key without a dot
// references the whole step output.
func parseRefKey(key string) *StepRef {
	if i := strings.Index(key, "."); i >= 0 {
		return &StepRef{Step: key[:i], Path: key[i+1:]}
	}
	return &StepRef{Step: key}
}

// resolveRef looks up a referenced value. The second return value is false
// when the referenced step has not succeeded or the path does not resolve.
func resolveRef(ref *StepRef, wctx *WorkflowContext) (any, bool) {
	if ref == nil {
		return nil, false
	}
	var source map[string]any
	if ref.Step == TriggerRef {
		source = wctx.TriggerData
	} else {
		result, ok := wctx.Steps[ref.Step]
		if !ok || result.Status != StepStatusSuccess {
			return nil, false
		}
		source = result.Output
	}
	if source == nil {
		return nil, false
	}
	if ref.Path == "" {
		return source, true
	}
	data, err := json.Marshal(source)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(data, ref.Path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// evaluateQuery applies comparison operators to a resolved value. A nil or
// empty query is satisfied by any resolved value. Unknown operators
// evaluate false.
func evaluateQuery(value any, query map[string]any) bool {
	if len(query) == 0 {
		return true
	}
	for op, target := range query {
		var ok bool
		switch op {
		case "$eq":
			ok = valuesEqual(value, target)
		case "$ne":
			ok = !valuesEqual(value, target)
		case "$gt":
			ok = compareValues(value, target) > 0
		case "$gte":
			ok = compareValues(value, target) >= 0
		case "$lt":
			ok = compareValues(value, target) < 0
		case "$lte":
			ok = compareValues(value, target) <= 0
		case "$in":
			ok = valueIn(value, target)
		case "$nin":
			ok = !valueIn(value, target)
		case "$contains":
			ok = valueContains(value, target)
		default:
			ok = false
		}
		if !ok {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders two values numerically when possible, otherwise
// lexically. Incomparable pairs order as unequal and non-ordered (returns
// a sentinel 2 so every ordering operator evaluates false).
func compareValues(a, b any) int {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb)
	}
	return 2
}

func valueIn(value, target any) bool {
	items, ok := target.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(value, item) {
			return true
		}
	}
	return false
}

func valueContains(value, target any) bool {
	switch v := value.(type) {
	case string:
		s, ok := target.(string)
		return ok && strings.Contains(v, s)
	case []any:
		for _, item := range v {
			if valuesEqual(item, target) {
				return true
			}
		}
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
