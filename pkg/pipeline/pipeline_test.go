package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/etlengine/pkg/common/config"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/stage"
)

// mockStage is a hand-written test double: concrete stages in production
// code live in pkg/stage, but pipeline tests only need a stage whose
// Execute behavior is controlled by a closure.
type mockStage struct {
	stage.Base
	executeFunc func(ctx *execctx.ExecutionContext) (int64, error)
}

func newMockStage(t *testing.T, name string, order int, fn func(ctx *execctx.ExecutionContext) (int64, error)) *mockStage {
	base, err := stage.NewBase(name, name, "", stage.TypeTransform, order)
	require.NoError(t, err)
	return &mockStage{Base: base, executeFunc: fn}
}

func (m *mockStage) Execute(ctx *execctx.ExecutionContext) (int64, error) {
	return m.executeFunc(ctx)
}

func newRunCtx(cfg *config.PipelineConfig) *execctx.ExecutionContext {
	return execctx.New(context.Background(), "pipeline-1", cfg, nil)
}

func TestPipeline_HappyPath(t *testing.T) {
	s1 := newMockStage(t, "extract", 0, func(ctx *execctx.ExecutionContext) (int64, error) { return 2, nil })
	s2 := newMockStage(t, "load", 1, func(ctx *execctx.ExecutionContext) (int64, error) { return 2, nil })

	p := New("p1", "happy-path", []stage.Stage{s1, s2}, nil, nil)
	result := p.Execute(newRunCtx(nil))

	assert.True(t, result.Success)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, int64(4), result.RecordsProcessed)
	assert.Empty(t, result.Errors)
}

func TestPipeline_EmptyPipelineWarnsAndSucceeds(t *testing.T) {
	p := New("p1", "empty", nil, nil, nil)
	result := p.Execute(newRunCtx(nil))

	assert.True(t, result.Success)
	assert.Equal(t, int64(0), result.RecordsProcessed)
}

func TestPipeline_DuplicateOrdersFailValidation(t *testing.T) {
	s1 := newMockStage(t, "a", 0, func(ctx *execctx.ExecutionContext) (int64, error) { return 0, nil })
	s2 := newMockStage(t, "b", 0, func(ctx *execctx.ExecutionContext) (int64, error) { return 0, nil })

	p := New("p1", "dup-orders", []stage.Stage{s1, s2}, nil, nil)
	result := p.Execute(newRunCtx(nil))

	assert.False(t, result.Success)
	assert.Equal(t, FailureKindPipelineValidation, result.FailureKind)
}

func TestPipeline_ErrorBudgetExceeded(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	cfg.ErrorHandling.MaxErrors = 1
	cfg.ErrorHandling.StopOnError = false

	ids := []int{1, 2, 3, 4}
	idx := 0
	s := newMockStage(t, "transform", 0, func(ctx *execctx.ExecutionContext) (int64, error) {
		id := ids[idx]
		idx++
		if id%2 == 0 {
			return 1, fmt.Errorf("id %d failed", id)
		}
		return 1, nil
	})

	p := New("p1", "budget", []stage.Stage{s}, cfg, nil)
	p.OnFailure = FailurePolicyContinue

	// Run the single stage four times by re-invoking Execute with a
	// context that accumulates errors across calls, mirroring four
	// records flowing through one stage.
	ctx := newRunCtx(cfg)
	var lastResult *ExecutionResult
	for i := 0; i < 4; i++ {
		lastResult = p.Execute(ctx)
	}

	assert.False(t, lastResult.Success)
	assert.Equal(t, FailureKindErrorBudgetExceeded, lastResult.FailureKind)
	assert.Equal(t, 2, len(ctx.Errors()))
}

func TestPipeline_CancellationYieldsCancelledStatus(t *testing.T) {
	s1 := newMockStage(t, "slow", 0, func(ctx *execctx.ExecutionContext) (int64, error) {
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	})
	s2 := newMockStage(t, "never", 1, func(ctx *execctx.ExecutionContext) (int64, error) {
		t.Fatal("stage must not run after cancellation")
		return 0, nil
	})

	p := New("p1", "cancel", []stage.Stage{s1, s2}, nil, nil)
	ctx := newRunCtx(nil)
	ctx.Cancel()

	result := p.Execute(ctx)
	assert.Equal(t, StatusCancelled, result.Status)
}

func TestPipeline_SetStagesRejectedWhileRunning(t *testing.T) {
	blocking := newMockStage(t, "blocking", 0, func(ctx *execctx.ExecutionContext) (int64, error) {
		return 0, nil
	})

	p := New("p1", "running-guard", []stage.Stage{blocking}, nil, nil)
	p.running = true
	err := p.SetStages(nil)
	assert.Error(t, err)
}
