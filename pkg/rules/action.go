package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
	"github.com/dataforge/etlengine/pkg/transform"
)

// ActionKind tags the closed set of rule actions. Open extension is
// offered through ActionKindCustom only, per spec.md §9.
type ActionKind string

const (
	ActionKindSetField       ActionKind = "set_field"
	ActionKindRemoveField    ActionKind = "remove_field"
	ActionKindCopyField      ActionKind = "copy_field"
	ActionKindTransformField ActionKind = "transform_field"
	ActionKindSkipRecord     ActionKind = "skip_record"
	ActionKindStopProcessing ActionKind = "stop_processing"
	ActionKindLogMessage     ActionKind = "log_message"
	ActionKindCustom         ActionKind = "custom"
)

// CustomActionFunc is the escape hatch for actions outside the closed
// set: it receives and returns a record clone.
type CustomActionFunc func(r *record.Record, ctx *execctx.ExecutionContext) (*record.Record, error)

// Action is one step of a rule's action list.
type Action struct {
	Kind ActionKind

	// SetField / CopyField / TransformField
	Field       string
	TargetField string
	Value       record.Value
	Transform   transform.Transformation

	// SkipRecord
	Reason string

	// LogMessage
	Template string
	Level    string

	// Custom
	Custom CustomActionFunc
}

// applyResult reports what happened when an action was applied.
type applyResult struct {
	record *record.Record
	skip   bool
	stop   bool
	err    error
}

// apply executes a single action against the current record clone,
// returning the (possibly new) current record.
func (a Action) apply(current *record.Record, ctx *execctx.ExecutionContext) applyResult {
	switch a.Kind {
	case ActionKindSetField:
		clone := current.Clone()
		clone.Set(a.Field, a.Value)
		return applyResult{record: clone}

	case ActionKindRemoveField:
		clone := current.Clone()
		clone.Remove(a.Field)
		return applyResult{record: clone}

	case ActionKindCopyField:
		clone := current.Clone()
		v := clone.GetOrNull(a.Field)
		clone.Set(a.TargetField, v)
		return applyResult{record: clone}

	case ActionKindTransformField:
		if a.Transform == nil {
			return applyResult{record: current, err: fmt.Errorf("transform_field action missing transformation")}
		}
		res := a.Transform.Transform(current, ctx)
		if res.Outcome == transform.OutcomeFailure {
			return applyResult{record: current, err: res.Err}
		}
		return applyResult{record: res.Output}

	case ActionKindSkipRecord:
		return applyResult{record: current, skip: true}

	case ActionKindStopProcessing:
		return applyResult{record: current, stop: true}

	case ActionKindLogMessage:
		msg := renderTemplate(a.Template, current)
		if ctx != nil && ctx.Logger != nil {
			logAtLevel(ctx, a.Level, msg)
		}
		return applyResult{record: current}

	case ActionKindCustom:
		if a.Custom == nil {
			return applyResult{record: current, err: fmt.Errorf("custom action missing function")}
		}
		out, err := a.Custom(current.Clone(), ctx)
		if err != nil {
			return applyResult{record: current, err: err}
		}
		return applyResult{record: out}

	default:
		return applyResult{record: current, err: fmt.Errorf("unknown action kind %q", a.Kind)}
	}
}

var templateFieldPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// renderTemplate substitutes {fieldName} placeholders from the current
// record, per spec.md §4.3's LogMessage contract.
func renderTemplate(template string, r *record.Record) string {
	return templateFieldPattern.ReplaceAllStringFunc(template, func(match string) string {
		field := strings.TrimSuffix(strings.TrimPrefix(match, "{"), "}")
		return r.GetOrNull(field).String()
	})
}

func logAtLevel(ctx *execctx.ExecutionContext, level, msg string) {
	switch strings.ToLower(level) {
	case "warn", "warning":
		ctx.Logger.Warn(msg)
	case "error":
		ctx.Logger.Error(msg)
	case "debug":
		ctx.Logger.Debug(msg)
	default:
		ctx.Logger.Info(msg)
	}
}
