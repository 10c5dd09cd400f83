package stage

import (
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
	"github.com/dataforge/etlengine/pkg/rules"
	"github.com/dataforge/etlengine/pkg/transform"
)

// TransformStage applies a transformation pipeline, and optionally a rule
// engine pass, over the records produced by an earlier stage. Records
// that survive (are not skipped) replace the buffer's contents in place.
type TransformStage struct {
	Base
	Input    *[]*record.Record
	Pipeline *transform.TransformationPipeline
	Rules    *rules.Engine
}

// NewTransformStage constructs a transform stage. Rules may be nil when
// the stage only runs a transformation pipeline.
func NewTransformStage(id, name, description string, order int, input *[]*record.Record, pipeline *transform.TransformationPipeline, ruleEngine *rules.Engine) (*TransformStage, error) {
	base, err := NewBase(id, name, description, TypeTransform, order)
	if err != nil {
		return nil, err
	}
	return &TransformStage{Base: base, Input: input, Pipeline: pipeline, Rules: ruleEngine}, nil
}

func (s *TransformStage) Execute(ctx *execctx.ExecutionContext) (int64, error) {
	records := *s.Input

	if s.Rules != nil {
		var survivors []*record.Record
		for _, r := range records {
			if ctx.Cancelled() {
				break
			}
			res := s.Rules.Apply(r, ctx)
			if res.Skipped {
				ctx.Stats.AddSkipped(1)
				continue
			}
			survivors = append(survivors, res.Output)
		}
		records = survivors
	}

	if s.Pipeline != nil {
		result := s.Pipeline.Execute(records, ctx)
		records = result.FinalRecords
	}

	*s.Input = records
	ctx.Stats.AddProcessed(int64(len(records)))
	return int64(len(records)), nil
}
