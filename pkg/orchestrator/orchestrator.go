// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package orchestrator runs pipelines as managed executions: it tracks
// active runs, keeps a bounded history, exposes cancellation, and drives
// a cron scheduler, per spec.md §4.4.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge/etlengine/pkg/common/metrics"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/pipeline"
)

// ExecutionStatus is the live status of a tracked execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "Running"
	ExecutionStatusCompleted ExecutionStatus = "Completed"
	ExecutionStatusFailed    ExecutionStatus = "Failed"
	ExecutionStatusCancelled ExecutionStatus = "Cancelled"
)

// ExecutionHandle is the orchestrator's public view of a tracked
// execution, returned from the active map and stored in history.
type ExecutionHandle struct {
	ExecutionID      string
	PipelineID       string
	Status           ExecutionStatus
	StartTime        time.Time
	EndTime          time.Time
	RecordsProcessed int64
	Result           *pipeline.ExecutionResult
}

type cancellation struct {
	cancel context.CancelFunc
}

const historyLimit = 500

// Orchestrator tracks active executions, keeps a capped history, and
// runs the cron scheduler over registered jobs.
type Orchestrator struct {
	mu       sync.RWMutex
	active   map[string]*ExecutionHandle
	history  []ExecutionHandle
	cancels  map[string]*cancellation

	bus     *EventBus
	logger  *zap.Logger
	metrics *metrics.MetricsCollector

	scheduler *Scheduler
}

// New constructs an Orchestrator. bus may be nil, in which case events
// are still computed but silently discarded by a fresh no-op bus.
func New(bus *EventBus, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = NewEventBus(logger)
	}
	o := &Orchestrator{
		active:  make(map[string]*ExecutionHandle),
		cancels: make(map[string]*cancellation),
		bus:     bus,
		logger:  logger,
	}
	o.scheduler = newScheduler(o, logger)
	return o
}

// SetMetrics attaches a metrics collector that Execute reports pipeline
// and stage series to. A nil collector (the default) disables recording,
// mirroring the Events wiring done per-run in Execute.
func (o *Orchestrator) SetMetrics(m *metrics.MetricsCollector) {
	o.metrics = m
}

// Scheduler returns the orchestrator's job scheduler.
func (o *Orchestrator) Scheduler() *Scheduler { return o.scheduler }

// Execute runs the seven-step flow from spec.md §4.4: register, link
// cancellation, emit Started, run the pipeline, finalize status/history,
// emit the terminal event, and always deregister.
func (o *Orchestrator) Execute(ctx context.Context, p *pipeline.Pipeline, runCtx *execctx.ExecutionContext) (*pipeline.ExecutionResult, error) {
	executionID := runCtx.ExecutionID

	handle := &ExecutionHandle{
		ExecutionID: executionID,
		PipelineID:  p.ID,
		Status:      ExecutionStatusRunning,
		StartTime:   time.Now(),
	}

	o.mu.Lock()
	o.active[executionID] = handle
	o.mu.Unlock()

	linkedCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[executionID] = &cancellation{cancel: cancel}
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.active, executionID)
		delete(o.cancels, executionID)
		o.mu.Unlock()
	}()

	stop := context.AfterFunc(linkedCtx, runCtx.Cancel)
	defer stop()

	p.Events = &busPublisher{bus: o.bus}
	defer func() { p.Events = nil }()
	p.Metrics = o.metrics
	defer func() { p.Metrics = nil }()

	o.bus.Publish(newEvent(EventStarted, executionID, p.ID, nil))

	if o.metrics != nil {
		o.metrics.PipelineActiveExecutions.Inc()
		defer o.metrics.PipelineActiveExecutions.Dec()
	}

	result := p.Execute(runCtx)

	handle.EndTime = time.Now()
	handle.RecordsProcessed = result.RecordsProcessed
	handle.Result = result

	if o.metrics != nil {
		skipped := runCtx.Stats.Snapshot().RecordsSkipped
		o.metrics.RecordPipelineExecution(p.Name, string(result.Status), handle.EndTime.Sub(handle.StartTime), result.RecordsProcessed, result.RecordsFailed, skipped)
	}

	switch {
	case result.Status == pipeline.StatusCancelled:
		handle.Status = ExecutionStatusCancelled
		o.recordHistory(*handle)
		o.bus.Publish(newEvent(EventCancelled, executionID, p.ID, result))
		return result, context.Canceled
	case result.Success:
		handle.Status = ExecutionStatusCompleted
		o.recordHistory(*handle)
		o.bus.Publish(newEvent(EventCompleted, executionID, p.ID, result))
	default:
		handle.Status = ExecutionStatusFailed
		o.recordHistory(*handle)
		o.bus.Publish(newEvent(EventFailed, executionID, p.ID, result))
	}

	return result, nil
}

func (o *Orchestrator) recordHistory(handle ExecutionHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, handle)
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
}

// gracePeriod is how long Stop(executionID, false) waits before
// cancelling, per spec.md §4.4.
const gracePeriod = 30 * time.Second

// Stop cancels a tracked execution. If force is true, cancellation is
// immediate; otherwise it is deferred by a 30-second grace period.
// Returns whether the execution was found.
func (o *Orchestrator) Stop(executionID string, force bool) bool {
	o.mu.RLock()
	c, ok := o.cancels[executionID]
	o.mu.RUnlock()
	if !ok {
		return false
	}

	if force {
		c.cancel()
		return true
	}

	time.AfterFunc(gracePeriod, func() {
		o.mu.RLock()
		current, stillActive := o.cancels[executionID]
		o.mu.RUnlock()
		if stillActive && current == c {
			c.cancel()
		}
	})
	return true
}

// Active returns a snapshot of every currently-tracked execution.
func (o *Orchestrator) Active() []ExecutionHandle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ExecutionHandle, 0, len(o.active))
	for _, h := range o.active {
		out = append(out, *h)
	}
	return out
}

// ActiveByID returns one tracked execution by id.
func (o *Orchestrator) ActiveByID(executionID string) (ExecutionHandle, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	h, ok := o.active[executionID]
	if !ok {
		return ExecutionHandle{}, false
	}
	return *h, true
}

// History returns a snapshot of completed executions, most recent last.
func (o *Orchestrator) History() []ExecutionHandle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ExecutionHandle, len(o.history))
	copy(out, o.history)
	return out
}
