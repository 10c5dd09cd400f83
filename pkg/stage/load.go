package stage

import (
	"github.com/dataforge/etlengine/pkg/connector"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

// LoadStage writes records accumulated by earlier stages to a
// Destination connector, in batches.
type LoadStage struct {
	Base
	Destination connector.Destination
	Input       *[]*record.Record
	BatchSize   int
}

// NewLoadStage constructs a load stage. A batchSize of 0 writes every
// record in a single batch.
func NewLoadStage(id, name, description string, order int, dest connector.Destination, input *[]*record.Record, batchSize int) (*LoadStage, error) {
	base, err := NewBase(id, name, description, TypeLoad, order)
	if err != nil {
		return nil, err
	}
	return &LoadStage{Base: base, Destination: dest, Input: input, BatchSize: batchSize}, nil
}

func (s *LoadStage) Prepare(ctx *execctx.ExecutionContext) error {
	return s.Destination.Open(ctx.Context())
}

func (s *LoadStage) Execute(ctx *execctx.ExecutionContext) (int64, error) {
	records := *s.Input
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = len(records)
	}
	if batchSize == 0 {
		return 0, nil
	}

	var written int64
	for i := 0; i < len(records); i += batchSize {
		if ctx.Cancelled() {
			return written, ctx.Context().Err()
		}
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		successful, failed, err := s.Destination.WriteBatch(ctx.Context(), records[i:end])
		if err != nil {
			return written, err
		}
		written += int64(successful)
		ctx.Stats.AddFailed(int64(failed))
	}
	return written, nil
}

func (s *LoadStage) Cleanup(ctx *execctx.ExecutionContext) error {
	return s.Destination.Close(ctx.Context())
}
