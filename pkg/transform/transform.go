// Package transform implements the transformation primitives (field,
// record, conditional, aggregate), the processor that applies a sequence
// of them to a record, and the multi-stage transformation pipeline.
package transform

import (
	"fmt"
	"time"

	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

// Kind tags which variant of transformation a value implements.
type Kind int

const (
	KindUnknown Kind = iota
	KindField
	KindRecord
	KindConditional
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindRecord:
		return "record"
	case KindConditional:
		return "conditional"
	case KindAggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// Outcome classifies what happened when a transformation was applied.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkip
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkip:
		return "skip"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of applying a single transformation to a record.
type Result struct {
	Outcome Outcome
	Output  *record.Record
	Err     *execctx.ExecutionError
}

// Transformation is a value-level function over a record or field. Every
// implementation must satisfy the clone-then-modify discipline: Transform
// never mutates its input.
type Transformation interface {
	ID() string
	Name() string
	Description() string
	Kind() Kind
	SupportsParallelExecution() bool

	Validate(ctx *execctx.ExecutionContext) error
	Transform(r *record.Record, ctx *execctx.ExecutionContext) Result
	TransformBatch(records []*record.Record, ctx *execctx.ExecutionContext) []Result
	Metadata() map[string]interface{}
}

// Base carries the identity fields shared by every transformation
// variant; concrete transforms embed it and implement Transform.
type Base struct {
	id          string
	name        string
	description string
	kind        Kind
	parallel    bool
	meta        map[string]interface{}
}

// NewBase builds the shared bookkeeping for a concrete transformation.
func NewBase(id, name, description string, kind Kind, parallel bool) Base {
	return Base{
		id:          id,
		name:        name,
		description: description,
		kind:        kind,
		parallel:    parallel,
		meta:        make(map[string]interface{}),
	}
}

func (b *Base) ID() string                       { return b.id }
func (b *Base) Name() string                      { return b.name }
func (b *Base) Description() string               { return b.description }
func (b *Base) Kind() Kind                        { return b.kind }
func (b *Base) SupportsParallelExecution() bool   { return b.parallel }
func (b *Base) Metadata() map[string]interface{}  { return b.meta }
func (b *Base) Validate(ctx *execctx.ExecutionContext) error { return nil }

// defaultTransformBatch applies Transform to each record independently.
// Concrete transforms call it from their TransformBatch, or implement
// TransformBatch themselves to batch more efficiently (e.g. Aggregate).
func (b *Base) defaultTransformBatch(self Transformation, records []*record.Record, ctx *execctx.ExecutionContext) []Result {
	results := make([]Result, len(records))
	for i, r := range records {
		results[i] = self.Transform(r, ctx)
	}
	return results
}

// FieldFunc maps one field value to another, optionally renaming.
type FieldFunc func(v record.Value) (record.Value, error)

// FieldTransformation applies a pure function to a single named field,
// optionally writing the result under a different field name.
type FieldTransformation struct {
	Base
	SourceField string
	TargetField string
	Fn          FieldFunc
}

// NewFieldTransformation builds a field-level transformation. When
// targetField is empty, the result replaces sourceField in place.
func NewFieldTransformation(id, name, description, sourceField, targetField string, fn FieldFunc) *FieldTransformation {
	if targetField == "" {
		targetField = sourceField
	}
	return &FieldTransformation{
		Base:        NewBase(id, name, description, KindField, true),
		SourceField: sourceField,
		TargetField: targetField,
		Fn:          fn,
	}
}

func (f *FieldTransformation) Transform(r *record.Record, ctx *execctx.ExecutionContext) Result {
	start := time.Now()
	clone := r.Clone()

	v := clone.GetOrNull(f.SourceField)
	out, err := f.Fn(v)
	if err != nil {
		return Result{
			Outcome: OutcomeFailure,
			Output:  r,
			Err:     execctx.NewExecutionError("TRANSFORM_EXCEPTION", f.Name(), err.Error(), err, execctx.SeverityError),
		}
	}

	clone.Set(f.TargetField, out)
	recordTransformStats(ctx, f.Name(), time.Since(start), true)
	return Result{Outcome: OutcomeSuccess, Output: clone}
}

func (f *FieldTransformation) TransformBatch(records []*record.Record, ctx *execctx.ExecutionContext) []Result {
	return f.defaultTransformBatch(f, records, ctx)
}

// RecordFunc transforms a whole record, optionally requesting a skip.
type RecordFunc func(r *record.Record) (*record.Record, bool, error)

// RecordTransformation operates on the full record; it may legally skip a
// record (retain input, mark outcome as non-successful but non-fatal).
type RecordTransformation struct {
	Base
	Fn RecordFunc
}

// NewRecordTransformation builds a record-level transformation.
func NewRecordTransformation(id, name, description string, parallel bool, fn RecordFunc) *RecordTransformation {
	return &RecordTransformation{
		Base: NewBase(id, name, description, KindRecord, parallel),
		Fn:   fn,
	}
}

func (rt *RecordTransformation) Transform(r *record.Record, ctx *execctx.ExecutionContext) Result {
	start := time.Now()
	clone := r.Clone()

	out, skip, err := rt.Fn(clone)
	if err != nil {
		return Result{
			Outcome: OutcomeFailure,
			Output:  r,
			Err:     execctx.NewExecutionError("TRANSFORM_EXCEPTION", rt.Name(), err.Error(), err, execctx.SeverityError),
		}
	}
	if skip {
		return Result{Outcome: OutcomeSkip, Output: r}
	}

	recordTransformStats(ctx, rt.Name(), time.Since(start), true)
	return Result{Outcome: OutcomeSuccess, Output: out}
}

func (rt *RecordTransformation) TransformBatch(records []*record.Record, ctx *execctx.ExecutionContext) []Result {
	return rt.defaultTransformBatch(rt, records, ctx)
}

// Predicate evaluates a record to decide whether the guarded
// transformation applies.
type Predicate func(r *record.Record) bool

// ConditionalTransformation applies an inner transformation only when its
// guard predicate matches; otherwise the record passes through unchanged.
type ConditionalTransformation struct {
	Base
	Guard Predicate
	Then  Transformation
}

// NewConditionalTransformation builds a guarded transformation.
func NewConditionalTransformation(id, name, description string, guard Predicate, then Transformation) *ConditionalTransformation {
	return &ConditionalTransformation{
		Base:  NewBase(id, name, description, KindConditional, then.SupportsParallelExecution()),
		Guard: guard,
		Then:  then,
	}
}

func (c *ConditionalTransformation) Transform(r *record.Record, ctx *execctx.ExecutionContext) Result {
	if !c.Guard(r) {
		return Result{Outcome: OutcomeSuccess, Output: r.Clone()}
	}
	return c.Then.Transform(r, ctx)
}

func (c *ConditionalTransformation) TransformBatch(records []*record.Record, ctx *execctx.ExecutionContext) []Result {
	return c.defaultTransformBatch(c, records, ctx)
}

// AggregateFunc reduces a window of records into zero or more output
// records (e.g. group totals, running averages).
type AggregateFunc func(window []*record.Record) ([]*record.Record, error)

// AggregateTransformation reduces a bounded window of records. Unlike
// field/record transforms, it operates on the whole batch at once, so it
// shadows TransformBatch rather than relying on the per-record default.
type AggregateTransformation struct {
	Base
	WindowSize int
	Fn         AggregateFunc
}

// NewAggregateTransformation builds a window-based aggregate
// transformation. A windowSize of 0 treats the whole batch as one window.
func NewAggregateTransformation(id, name, description string, windowSize int, fn AggregateFunc) *AggregateTransformation {
	return &AggregateTransformation{
		Base:       NewBase(id, name, description, KindAggregate, false),
		WindowSize: windowSize,
		Fn:         fn,
	}
}

// Transform is not meaningful per-record for an aggregate; it treats the
// single record as a window of one.
func (a *AggregateTransformation) Transform(r *record.Record, ctx *execctx.ExecutionContext) Result {
	results := a.TransformBatch([]*record.Record{r}, ctx)
	if len(results) == 0 {
		return Result{Outcome: OutcomeSkip, Output: r}
	}
	return results[0]
}

func (a *AggregateTransformation) TransformBatch(records []*record.Record, ctx *execctx.ExecutionContext) []Result {
	start := time.Now()
	windowSize := a.WindowSize
	if windowSize <= 0 {
		windowSize = len(records)
	}
	if windowSize == 0 {
		return nil
	}

	var results []Result
	for i := 0; i < len(records); i += windowSize {
		end := i + windowSize
		if end > len(records) {
			end = len(records)
		}
		out, err := a.Fn(records[i:end])
		if err != nil {
			results = append(results, Result{
				Outcome: OutcomeFailure,
				Err:     execctx.NewExecutionError("TRANSFORM_EXCEPTION", a.Name(), err.Error(), err, execctx.SeverityError),
			})
			continue
		}
		for _, o := range out {
			results = append(results, Result{Outcome: OutcomeSuccess, Output: o})
		}
	}
	recordTransformStats(ctx, a.Name(), time.Since(start), true)
	return results
}

func recordTransformStats(ctx *execctx.ExecutionContext, name string, d time.Duration, success bool) {
	if ctx == nil {
		return
	}
	ctx.Stats.Increment(fmt.Sprintf("transform.%s.applied", name), 1)
}
