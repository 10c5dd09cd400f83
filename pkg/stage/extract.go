package stage

import (
	"github.com/dataforge/etlengine/pkg/connector"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

// ExtractStage reads records from a Source connector and appends them to
// an in-memory buffer for downstream stages. The buffer is the simplest
// connector-to-connector bridge the core can own without itself becoming
// a connector implementation.
type ExtractStage struct {
	Base
	Source connector.Source
	Buffer *[]*record.Record
}

// NewExtractStage constructs an extract stage over the given source,
// appending every record it reads to buffer.
func NewExtractStage(id, name, description string, order int, source connector.Source, buffer *[]*record.Record) (*ExtractStage, error) {
	base, err := NewBase(id, name, description, TypeExtract, order)
	if err != nil {
		return nil, err
	}
	return &ExtractStage{Base: base, Source: source, Buffer: buffer}, nil
}

func (s *ExtractStage) Prepare(ctx *execctx.ExecutionContext) error {
	return s.Source.Open(ctx.Context())
}

func (s *ExtractStage) Execute(ctx *execctx.ExecutionContext) (int64, error) {
	var count int64
	err := s.Source.Read(ctx.Context(), func(r *record.Record) error {
		if ctx.Cancelled() {
			return ctx.Context().Err()
		}
		*s.Buffer = append(*s.Buffer, r)
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

func (s *ExtractStage) Cleanup(ctx *execctx.ExecutionContext) error {
	return s.Source.Close(ctx.Context())
}
