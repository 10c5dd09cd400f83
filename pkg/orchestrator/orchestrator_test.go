package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/etlengine/pkg/common/config"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/pipeline"
	"github.com/dataforge/etlengine/pkg/stage"
)

type fakeStage struct {
	stage.Base
	fn func(ctx *execctx.ExecutionContext) (int64, error)
}

func newFakeStage(t *testing.T, name string, order int, fn func(ctx *execctx.ExecutionContext) (int64, error)) *fakeStage {
	base, err := stage.NewBase(name, name, "", stage.TypeTransform, order)
	require.NoError(t, err)
	return &fakeStage{Base: base, fn: fn}
}

func (f *fakeStage) Execute(ctx *execctx.ExecutionContext) (int64, error) { return f.fn(ctx) }

func TestOrchestrator_ExecuteEmitsStartedThenCompleted(t *testing.T) {
	s := newFakeStage(t, "only", 0, func(ctx *execctx.ExecutionContext) (int64, error) { return 3, nil })
	p := pipeline.New("p1", "happy", []stage.Stage{s}, nil, nil)

	var seen []EventType
	bus := NewEventBus(nil)
	bus.Subscribe(EventStarted, func(ev Event) { seen = append(seen, ev.Type) })
	bus.Subscribe(EventCompleted, func(ev Event) { seen = append(seen, ev.Type) })

	o := New(bus, nil)
	runCtx := execctx.New(context.Background(), "p1", nil, nil)
	result, err := o.Execute(context.Background(), p, runCtx)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []EventType{EventStarted, EventCompleted}, seen)
	assert.Empty(t, o.Active())
	require.Len(t, o.History(), 1)
	assert.Equal(t, ExecutionStatusCompleted, o.History()[0].Status)
}

func TestOrchestrator_EmitsStageCompletedAndDataProcessed(t *testing.T) {
	s1 := newFakeStage(t, "extract", 0, func(ctx *execctx.ExecutionContext) (int64, error) { return 4, nil })
	s2 := newFakeStage(t, "load", 1, func(ctx *execctx.ExecutionContext) (int64, error) { return 4, nil })
	p := pipeline.New("p1", "two-stage", []stage.Stage{s1, s2}, nil, nil)

	var stageCompleted, dataProcessed int
	bus := NewEventBus(nil)
	bus.Subscribe(EventStageCompleted, func(ev Event) { stageCompleted++ })
	bus.Subscribe(EventDataProcessed, func(ev Event) { dataProcessed++ })

	o := New(bus, nil)
	runCtx := execctx.New(context.Background(), "p1", nil, nil)
	result, err := o.Execute(context.Background(), p, runCtx)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, stageCompleted)
	assert.Equal(t, 2, dataProcessed)
}

func TestOrchestrator_SubscriberPanicIsSwallowed(t *testing.T) {
	s := newFakeStage(t, "only", 0, func(ctx *execctx.ExecutionContext) (int64, error) { return 1, nil })
	p := pipeline.New("p1", "panic-test", []stage.Stage{s}, nil, nil)

	bus := NewEventBus(nil)
	bus.Subscribe(EventStarted, func(ev Event) { panic("boom") })

	completed := false
	bus.Subscribe(EventCompleted, func(ev Event) { completed = true })

	o := New(bus, nil)
	runCtx := execctx.New(context.Background(), "p1", nil, nil)
	result, err := o.Execute(context.Background(), p, runCtx)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, completed)
}

func TestOrchestrator_StopForceCancelsRun(t *testing.T) {
	started := make(chan struct{})
	s := newFakeStage(t, "slow", 0, func(ctx *execctx.ExecutionContext) (int64, error) {
		close(started)
		select {
		case <-ctx.Context().Done():
		case <-time.After(time.Second):
		}
		return 0, nil
	})
	p := pipeline.New("p1", "cancel-test", []stage.Stage{s}, nil, nil)

	o := New(nil, nil)
	runCtx := execctx.New(context.Background(), "p1", nil, nil)

	done := make(chan struct{})
	var result *pipeline.ExecutionResult
	go func() {
		result, _ = o.Execute(context.Background(), p, runCtx)
		close(done)
	}()

	<-started
	handles := o.Active()
	require.Len(t, handles, 1)
	assert.True(t, o.Stop(handles[0].ExecutionID, true))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not stop")
	}

	assert.Equal(t, pipeline.StatusCancelled, result.Status)
}

func TestOrchestrator_StopUnknownExecutionReturnsFalse(t *testing.T) {
	o := New(nil, nil)
	assert.False(t, o.Stop("does-not-exist", true))
}

func TestOrchestrator_ErrorBudgetFailureEmitsFailed(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	cfg.ErrorHandling.MaxErrors = 0
	s := newFakeStage(t, "failing", 0, func(ctx *execctx.ExecutionContext) (int64, error) {
		return 0, assertErr
	})
	p := pipeline.New("p1", "budget", []stage.Stage{s}, cfg, nil)

	var seen []EventType
	bus := NewEventBus(nil)
	bus.Subscribe(EventFailed, func(ev Event) { seen = append(seen, ev.Type) })

	o := New(bus, nil)
	runCtx := execctx.New(context.Background(), "p1", cfg, nil)
	result, err := o.Execute(context.Background(), p, runCtx)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []EventType{EventFailed}, seen)
}

var assertErr = assertErrType("boom")

type assertErrType string

func (e assertErrType) Error() string { return string(e) }
