package transform

import (
	"time"

	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

// ProcessingResult is the outcome of running a sequence of transforms
// over one record.
type ProcessingResult struct {
	Success        bool
	Output         *record.Record
	Errors         []*execctx.ExecutionError
	AppliedCount   int
	FieldsAffected int
}

// Processor applies an ordered sequence of transformations, feeding the
// output of one as the input to the next.
type Processor struct{}

// NewProcessor constructs a transformation processor.
func NewProcessor() *Processor { return &Processor{} }

// ProcessRecord runs transforms in listed order against one record. A
// transform's failure records an error but does not abort the sequence:
// the original (pre-failure) record continues to the next transform,
// matching the processor contract in spec.md §4.2.
func (p *Processor) ProcessRecord(r *record.Record, transforms []Transformation, ctx *execctx.ExecutionContext) ProcessingResult {
	current := r
	result := ProcessingResult{Success: true, Output: r}

	for _, t := range transforms {
		start := time.Now()
		res := t.Transform(current, ctx)
		if ctx.Metrics != nil {
			ctx.Metrics.RecordTransformation(t.Name(), res.Outcome.String(), time.Since(start))
		}
		result.AppliedCount++

		switch res.Outcome {
		case OutcomeSuccess:
			before := current.Len()
			current = res.Output
			result.FieldsAffected += abs(current.Len() - before)
			ctx.Stats.AddProcessed(1)
		case OutcomeSkip:
			// retain current input; not successful, but not fatal
			result.Success = false
			continue
		case OutcomeFailure:
			result.Success = false
			result.Errors = append(result.Errors, res.Err)
			ctx.AddError(res.Err)
			ctx.Stats.AddFailed(1)
		}
	}

	result.Output = current
	return result
}

// ProcessBatch runs ProcessRecord over each record in the batch,
// observing cancellation between records.
func (p *Processor) ProcessBatch(records []*record.Record, transforms []Transformation, ctx *execctx.ExecutionContext) []ProcessingResult {
	results := make([]ProcessingResult, 0, len(records))
	for _, r := range records {
		if ctx.Cancelled() {
			break
		}
		results = append(results, p.ProcessRecord(r, transforms, ctx))
	}
	return results
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
