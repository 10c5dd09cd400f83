package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

func lowercaseTransform() *FieldTransformation {
	return NewFieldTransformation("lc-1", "lowercase", "lowercases name", "name", "", func(v record.Value) (record.Value, error) {
		return record.NewString(strings.ToLower(v.String())), nil
	})
}

func newTestContext() *execctx.ExecutionContext {
	return execctx.New(context.Background(), "test-pipeline", nil, nil)
}

func TestFieldTransformation_DoesNotMutateInput(t *testing.T) {
	r := record.New()
	r.Set("name", record.NewString("ALICE"))

	lc := lowercaseTransform()
	ctx := newTestContext()

	res := lc.Transform(r, ctx)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	original, _ := r.GetString("name")
	assert.Equal(t, "ALICE", original, "input record must not be mutated")

	out, _ := res.Output.GetString("name")
	assert.Equal(t, "alice", out)
}

func TestRecordTransformation_Skip(t *testing.T) {
	rt := NewRecordTransformation("skip-1", "skip-inactive", "", false, func(r *record.Record) (*record.Record, bool, error) {
		if status, ok := r.GetString("status"); ok && status == "inactive" {
			return nil, true, nil
		}
		return r, false, nil
	})

	r := record.New()
	r.Set("status", record.NewString("inactive"))

	ctx := newTestContext()
	res := rt.Transform(r, ctx)
	assert.Equal(t, OutcomeSkip, res.Outcome)
}

func TestProcessor_ProcessRecord_AppliesInOrder(t *testing.T) {
	upper := NewFieldTransformation("up-1", "upper", "", "name", "", func(v record.Value) (record.Value, error) {
		s := v.String()
		return record.NewString(strings.ToUpper(s)), nil
	})
	suffix := NewFieldTransformation("suf-1", "suffix", "", "name", "", func(v record.Value) (record.Value, error) {
		return record.NewString(v.String() + "!"), nil
	})

	r := record.New()
	r.Set("name", record.NewString("bob"))

	p := NewProcessor()
	ctx := newTestContext()
	result := p.ProcessRecord(r, []Transformation{upper, suffix}, ctx)

	require.True(t, result.Success)
	name, _ := result.Output.GetString("name")
	assert.Equal(t, "BOB!", name)
}

func TestTransformationPipeline_EmptyAfterStageSkipsRemaining(t *testing.T) {
	dropAll := NewRecordTransformation("drop-1", "drop-all", "", false, func(r *record.Record) (*record.Record, bool, error) {
		return nil, true, nil
	})
	neverRuns := NewRecordTransformation("never-1", "never-runs", "", false, func(r *record.Record) (*record.Record, bool, error) {
		t.Fatal("this transform must not run once the record set is empty")
		return r, false, nil
	})

	pipeline := NewTransformationPipeline([]Stage{
		{Name: "drop", Transforms: []Transformation{dropAll}, Strategy: StrategySequential},
		{Name: "never", Transforms: []Transformation{neverRuns}, Strategy: StrategySequential},
	})

	r := record.New()
	r.Set("id", record.NewInt(1))

	ctx := newTestContext()
	result := pipeline.Execute([]*record.Record{r}, ctx)

	assert.True(t, result.StageResults[1].Skipped)
	assert.Empty(t, result.FinalRecords)
}

func TestTransformationPipeline_ParallelPreservesValues(t *testing.T) {
	upper := NewFieldTransformation("up-2", "upper", "", "name", "", func(v record.Value) (record.Value, error) {
		return record.NewString(strings.ToUpper(v.String())), nil
	})

	var records []*record.Record
	for i := 0; i < 50; i++ {
		r := record.New()
		r.Set("id", record.NewInt(int64(i)))
		r.Set("name", record.NewString("name"))
		records = append(records, r)
	}

	pipeline := NewTransformationPipeline([]Stage{
		{Name: "upper", Transforms: []Transformation{upper}, Strategy: StrategyParallel, Parallelism: 4},
	})

	ctx := newTestContext()
	result := pipeline.Execute(records, ctx)

	require.Len(t, result.FinalRecords, 50)
	seen := make(map[int64]bool)
	for _, r := range result.FinalRecords {
		id, _ := r.GetInt("id")
		seen[id] = true
		name, _ := r.GetString("name")
		assert.Equal(t, "NAME", name)
	}
	assert.Len(t, seen, 50)
}
