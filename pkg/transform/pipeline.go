package transform

import (
	"runtime"
	"sync"

	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

// Strategy selects how a TransformationStage applies its transforms
// across a batch of records.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyBatch      Strategy = "batch"
)

// Stage is one step of a TransformationPipeline: its own transforms, an
// execution strategy, and a continue-on-error flag.
type Stage struct {
	Name             string
	Transforms       []Transformation
	Strategy         Strategy
	ContinueOnError  bool
	Parallelism      int
}

// StageResult summarizes one stage's application across a batch.
type StageResult struct {
	StageName string
	Results   []ProcessingResult
	Skipped   bool
}

// PipelineResult is the outcome of running a TransformationPipeline over
// a batch of input records.
type PipelineResult struct {
	StageResults []StageResult
	FinalRecords []*record.Record
}

// TransformationPipeline composes ordered stages of transforms, passing
// only the records each stage's results mark successful on to the next
// stage.
type TransformationPipeline struct {
	Stages    []Stage
	processor *Processor
}

// NewTransformationPipeline builds a transformation pipeline over the
// given stages.
func NewTransformationPipeline(stages []Stage) *TransformationPipeline {
	return &TransformationPipeline{Stages: stages, processor: NewProcessor()}
}

// Execute runs every stage in order. After a stage, only records whose
// latest result was successful flow onward; if that set becomes empty,
// remaining stages are marked skipped rather than executed.
func (p *TransformationPipeline) Execute(records []*record.Record, ctx *execctx.ExecutionContext) PipelineResult {
	current := records
	out := PipelineResult{}

	exhausted := false
	for _, stage := range p.Stages {
		if exhausted {
			out.StageResults = append(out.StageResults, StageResult{StageName: stage.Name, Skipped: true})
			continue
		}

		results := p.executeStage(stage, current, ctx)
		out.StageResults = append(out.StageResults, StageResult{StageName: stage.Name, Results: results})

		var next []*record.Record
		failed := false
		for _, r := range results {
			if r.Success {
				next = append(next, r.Output)
			} else if len(r.Errors) > 0 {
				failed = true
			}
		}

		if failed && !stage.ContinueOnError {
			// The stage failed and does not continue on error: no record
			// proceeds and the remaining stages are marked skipped.
			current = nil
			exhausted = true
			continue
		}

		current = next
		if len(current) == 0 {
			exhausted = true
		}
	}

	out.FinalRecords = current
	return out
}

func (p *TransformationPipeline) executeStage(stage Stage, records []*record.Record, ctx *execctx.ExecutionContext) []ProcessingResult {
	switch stage.Strategy {
	case StrategyParallel:
		return p.executeParallel(stage, records, ctx)
	case StrategyBatch:
		return p.processor.ProcessBatch(records, stage.Transforms, ctx)
	default:
		return p.processor.ProcessBatch(records, stage.Transforms, ctx)
	}
}

// executeParallel partitions records across a bounded worker pool.
// Ordering is preserved within a partition but not guaranteed across
// partitions, per spec.md §4.2.
func (p *TransformationPipeline) executeParallel(stage Stage, records []*record.Record, ctx *execctx.ExecutionContext) []ProcessingResult {
	dop := stage.Parallelism
	if dop <= 0 {
		dop = runtime.NumCPU()
	}
	if dop > len(records) {
		dop = len(records)
	}
	if dop <= 1 {
		return p.processor.ProcessBatch(records, stage.Transforms, ctx)
	}

	partitions := partition(records, dop)
	type partitionResult struct {
		index   int
		results []ProcessingResult
	}

	resultsChan := make(chan partitionResult, len(partitions))
	var wg sync.WaitGroup

	for i, part := range partitions {
		wg.Add(1)
		go func(idx int, recs []*record.Record) {
			defer wg.Done()
			resultsChan <- partitionResult{
				index:   idx,
				results: p.processor.ProcessBatch(recs, stage.Transforms, ctx),
			}
		}(i, part)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	ordered := make([][]ProcessingResult, len(partitions))
	for pr := range resultsChan {
		ordered[pr.index] = pr.results
	}

	var flat []ProcessingResult
	for _, r := range ordered {
		flat = append(flat, r...)
	}
	return flat
}

func partition(records []*record.Record, n int) [][]*record.Record {
	if n <= 0 {
		n = 1
	}
	size := (len(records) + n - 1) / n
	if size == 0 {
		size = 1
	}
	var parts [][]*record.Record
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		parts = append(parts, records[i:end])
	}
	return parts
}
