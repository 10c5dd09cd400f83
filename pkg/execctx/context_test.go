package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/etlengine/pkg/record"
)

func TestExecutionContext_DeriveSharesStatsAndErrors(t *testing.T) {
	root := New(context.Background(), "pipeline-1", nil, nil)
	stage := root.Derive("stage-a")

	assert.Equal(t, root.ExecutionID, stage.ExecutionID)
	assert.Equal(t, "stage-a", stage.StageName)

	stage.Stats.AddProcessed(3)
	assert.Equal(t, int64(3), root.Stats.Snapshot().RecordsProcessed)

	stage.AddError(NewExecutionError("E1", "stage-a", "boom", nil, SeverityError))
	require.Len(t, root.Errors(), 1)
	assert.Equal(t, "boom", root.Errors()[0].Message)
}

func TestExecutionContext_DerivePropertiesAreShallowCopy(t *testing.T) {
	root := New(context.Background(), "pipeline-1", nil, nil)
	root.Properties.Set("k", "v")

	stage := root.Derive("stage-a")
	v, ok := stage.Properties.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	stage.Properties.Set("only-stage", true)
	_, ok = root.Properties.Get("only-stage")
	assert.False(t, ok)
}

func TestExecutionContext_CancelPropagatesToDerived(t *testing.T) {
	root := New(context.Background(), "pipeline-1", nil, nil)
	stage := root.Derive("stage-a")

	assert.False(t, stage.Cancelled())
	root.Cancel()
	assert.True(t, stage.Cancelled())

	select {
	case <-stage.Context().Done():
	default:
		t.Fatal("expected stage context to be done after parent cancel")
	}
}

func TestExecutionContext_SetCurrent(t *testing.T) {
	root := New(context.Background(), "pipeline-1", nil, nil)
	r := record.New()
	r.Set("id", record.NewInt(42))
	root.SetCurrent(r)

	id, ok := root.Current().GetInt("id")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}
