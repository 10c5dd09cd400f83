package rules

import (
	"fmt"
	"sort"

	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

// Rule is a prioritized condition-action pair. Conditions are
// AND-combined; actions run in listed order.
type Rule struct {
	ID         string
	Name       string
	Priority   int
	Enabled    bool
	Conditions []Condition
	Actions    []Action
}

// Validate enforces the at-least-one-action invariant spec.md §3 requires.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule %q: name is required", r.ID)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %q: at least one action is required", r.Name)
	}
	return nil
}

func (r Rule) matches(rec *record.Record) bool {
	for _, c := range r.Conditions {
		if !c.Evaluate(rec) {
			return false
		}
	}
	return true
}

// Engine evaluates enabled rules in descending priority order against a
// record, accumulating action provenance and errors.
type Engine struct {
	rules []Rule
}

// NewEngine builds a rule engine, sorting rules by descending priority.
// The sort is stable so equal-priority rules retain their input order,
// matching the "priority sort is stable" invariant in spec.md §3.
func NewEngine(rules []Rule) (*Engine, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Engine{rules: sorted}, nil
}

// appliedRulesKey is the property-bag key the engine records matched
// rule ids under, per spec.md §4.3's AppliedRules contract.
const appliedRulesKey = "AppliedRules"

// Apply evaluates every enabled rule against r in priority order. It
// returns a single TransformationResult whose output is the final
// record; success is true iff no action produced an error. A
// StopProcessing action halts further rule evaluation.
func (e *Engine) Apply(r *record.Record, ctx *execctx.ExecutionContext) Result {
	current := r
	skipped := false
	var appliedRules []string
	var errs []*execctx.ExecutionError

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		matched := rule.matches(current)
		if !matched {
			if ctx != nil && ctx.Metrics != nil {
				ctx.Metrics.RecordRuleEvaluation(rule.Name, false, nil)
			}
			continue
		}

		appliedRules = append(appliedRules, rule.ID)
		stopAll := false
		var actionsApplied []string

		for _, action := range rule.Actions {
			res := action.apply(current, ctx)
			if res.err != nil {
				errs = append(errs, execctx.NewExecutionError(rule.ID, "rules.Engine", res.err.Error(), res.err, execctx.SeverityError))
				if ctx != nil {
					ctx.AddError(errs[len(errs)-1])
				}
				// action failure does not abort the record unless the
				// action itself was StopProcessing
				continue
			}
			actionsApplied = append(actionsApplied, string(action.Kind))
			current = res.record
			if res.skip {
				skipped = true
			}
			if res.stop {
				stopAll = true
				break
			}
		}

		if ctx != nil && ctx.Metrics != nil {
			ctx.Metrics.RecordRuleEvaluation(rule.Name, true, actionsApplied)
		}

		if stopAll {
			break
		}
	}

	if ctx != nil && len(appliedRules) > 0 {
		existing, _ := ctx.Properties.Get(appliedRulesKey)
		ids, _ := existing.([]string)
		ctx.Properties.Set(appliedRulesKey, append(ids, appliedRules...))
	}

	return Result{
		Success:      len(errs) == 0,
		Output:       current,
		Skipped:      skipped,
		Errors:       errs,
		AppliedRules: appliedRules,
	}
}

// Result is the outcome of running the engine over one record.
type Result struct {
	Success      bool
	Output       *record.Record
	Skipped      bool
	Errors       []*execctx.ExecutionError
	AppliedRules []string
}
