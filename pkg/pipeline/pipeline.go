// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package pipeline implements the ordered composition of stages executed
// once per run: validation, the execution plan, per-stage failure
// policy, the error budget, and cancellation.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge/etlengine/pkg/common/config"
	"github.com/dataforge/etlengine/pkg/common/metrics"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/stage"
)

// FailurePolicy controls how the pipeline reacts to a stage failure.
type FailurePolicy string

const (
	FailurePolicyContinue FailurePolicy = "continue"
	FailurePolicyAbort    FailurePolicy = "abort"
)

// FailureKind classifies why a run failed, for PipelineExecutionResult
// consumers that need to distinguish ErrorBudgetExceeded from an
// ordinary stage failure.
type FailureKind string

const (
	FailureKindNone                FailureKind = ""
	FailureKindPipelineValidation  FailureKind = "PipelineValidation"
	FailureKindStopOnError         FailureKind = "StopOnError"
	FailureKindErrorBudgetExceeded FailureKind = "ErrorBudgetExceeded"
	FailureKindCancelled           FailureKind = "Cancelled"
)

// Status mirrors the stage composite status for the whole run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ExecutionResult is the outcome of Pipeline.Execute.
type ExecutionResult struct {
	ExecutionID      string
	PipelineID       string
	StartTime        time.Time
	EndTime          time.Time
	Success          bool
	Status           Status
	FailureKind      FailureKind
	RecordsProcessed int64
	RecordsFailed    int64
	Errors           []*execctx.ExecutionError
	Warnings         []*execctx.ExecutionError
	StageResults     []stage.Result
}

// EventPublisher is an optional collaborator notified of stage-level and
// data-processed events during a run, per spec.md §6. It is set by a
// caller (e.g. the orchestrator) before Execute and is nil-safe.
type EventPublisher interface {
	Publish(topic, executionID, pipelineID string, payload interface{})
}

// Pipeline is an ordered set of stages; duplicate orders are invalid and
// stages cannot be modified while the pipeline is running.
type Pipeline struct {
	ID        string
	Name      string
	OnFailure FailurePolicy
	Config    *config.PipelineConfig
	Events    EventPublisher
	// Metrics is an optional collaborator recording per-stage Prometheus
	// series. Set by a caller (e.g. the orchestrator) before Execute; a
	// nil Metrics is a no-op, mirroring Events.
	Metrics *metrics.MetricsCollector
	stages  []stage.Stage
	running bool
	logger  *zap.Logger
}

// New constructs a pipeline over the given stages.
func New(id, name string, stages []stage.Stage, cfg *config.PipelineConfig, logger *zap.Logger) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	onFailure := FailurePolicyContinue
	if cfg.ErrorHandling.StopOnError {
		onFailure = FailurePolicyAbort
	}
	return &Pipeline{
		ID:        id,
		Name:      name,
		OnFailure: onFailure,
		Config:    cfg,
		stages:    stages,
		logger:    logger,
	}
}

// Stages returns the pipeline's stages. Modifying the returned slice does
// not affect the pipeline.
func (p *Pipeline) Stages() []stage.Stage {
	out := make([]stage.Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// SetStages replaces the pipeline's stages. It is an error to call this
// while the pipeline is running, per spec.md §3's invariant.
func (p *Pipeline) SetStages(stages []stage.Stage) error {
	if p.running {
		return fmt.Errorf("pipeline %q: cannot modify stages while running", p.Name)
	}
	p.stages = stages
	return nil
}

// Validate enforces spec.md §4.1 step 1: non-empty name, unique stage
// orders, and every stage has a non-empty name. An empty stage list is
// only a warning, appended to warnings rather than returned as an error.
func (p *Pipeline) Validate() (warnings []string, err error) {
	if p.Name == "" {
		return nil, newValidationError("pipeline name is required")
	}
	if len(p.stages) == 0 {
		return []string{"no stages"}, nil
	}

	seenOrders := make(map[int]bool)
	for _, s := range p.stages {
		if s.Name() == "" {
			return nil, newValidationError("stage name is required")
		}
		if seenOrders[s.Order()] {
			return nil, newValidationError(fmt.Sprintf("duplicate stage order %d", s.Order()))
		}
		seenOrders[s.Order()] = true
	}
	return nil, nil
}

type validationError struct{ message string }

func newValidationError(msg string) *validationError { return &validationError{message: msg} }
func (e *validationError) Error() string              { return e.message }

// Execute runs the 5-step algorithm from spec.md §4.1: validate, build
// the execution plan, run each enabled stage observing the failure
// policy, check the error budget, and determine the terminal status.
func (p *Pipeline) Execute(ctx *execctx.ExecutionContext) *ExecutionResult {
	ctx.Metrics = p.Metrics

	result := &ExecutionResult{
		ExecutionID: ctx.ExecutionID,
		PipelineID:  p.ID,
		StartTime:   time.Now(),
	}

	warnings, err := p.Validate()
	for _, w := range warnings {
		ctx.AddWarning(execctx.NewExecutionError("PIPELINE_VALIDATION_WARNING", p.Name, w, nil, execctx.SeverityWarning))
	}
	if err != nil {
		result.EndTime = time.Now()
		result.Success = false
		result.Status = StatusFailed
		result.FailureKind = FailureKindPipelineValidation
		ctx.AddError(execctx.NewExecutionError("PIPELINE_VALIDATION_ERROR", p.Name, err.Error(), err, execctx.SeverityFatal))
		p.finalize(result, ctx)
		return result
	}

	p.running = true
	defer func() { p.running = false }()

	plan := p.buildExecutionPlan()

	stopped := false
	cancelled := false

	for _, s := range plan {
		if ctx.Cancelled() {
			cancelled = true
			break
		}

		stageCtx := ctx.Derive(s.Name())
		stageResult := p.executeStage(s, stageCtx)
		result.StageResults = append(result.StageResults, stageResult)
		result.RecordsProcessed += stageResult.RecordsProcessed

		if p.Events != nil {
			if stageResult.Status == stage.StatusCompleted {
				p.Events.Publish("pipeline.stage.completed", ctx.ExecutionID, p.ID, stageResult)
			}
			if stageResult.RecordsProcessed > 0 {
				p.Events.Publish("pipeline.data.processed", ctx.ExecutionID, p.ID, stageResult.RecordsProcessed)
			}
		}

		if stageResult.Status == stage.StatusCancelled || ctx.Cancelled() {
			cancelled = true
			break
		}

		if len(stageResult.Errors) > 0 {
			policy := p.OnFailure
			if policy == "" {
				policy = FailurePolicyContinue
				if p.Config != nil && p.Config.ErrorHandling.StopOnError {
					policy = FailurePolicyAbort
				}
			}
			if policy == FailurePolicyAbort {
				stopped = true
				break
			}
		}
	}

	if cancelled {
		result.Status = StatusCancelled
		result.FailureKind = FailureKindCancelled
		result.EndTime = time.Now()
		p.finalize(result, ctx)
		return result
	}

	maxErrors := p.Config.ErrorHandling.MaxErrors
	totalErrors := len(ctx.Errors())
	if totalErrors > maxErrors {
		result.Success = false
		result.Status = StatusFailed
		result.FailureKind = FailureKindErrorBudgetExceeded
		result.EndTime = time.Now()
		p.finalize(result, ctx)
		return result
	}

	if stopped {
		result.FailureKind = FailureKindStopOnError
	}

	result.Success = totalErrors == 0
	if result.Success {
		result.Status = StatusCompleted
		result.FailureKind = FailureKindNone
	} else {
		result.Status = StatusFailed
	}
	result.EndTime = time.Now()
	p.finalize(result, ctx)
	return result
}

// buildExecutionPlan filters skipped stages and sorts the remainder
// ascending by order, per spec.md §4.1 step 2.
func (p *Pipeline) buildExecutionPlan() []stage.Stage {
	var plan []stage.Stage
	for _, s := range p.stages {
		if s.Status() == stage.StatusSkipped {
			continue
		}
		plan = append(plan, s)
	}
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Order() < plan[j].Order() })
	return plan
}

// executeStage runs one stage's prepare/execute/cleanup lifecycle.
// Cleanup failures are logged as warnings, never fatal, per spec.md
// §4.1 step 3.
func (p *Pipeline) executeStage(s stage.Stage, stageCtx *execctx.ExecutionContext) stage.Result {
	result := stage.Result{StageName: s.Name(), StageID: s.ID(), StartTime: time.Now()}

	s.SetStatus(stage.StatusRunning)

	if err := s.Prepare(stageCtx); err != nil {
		result.Status = stage.StatusFailed
		execErr := execctx.NewExecutionError("STAGE_PREPARE_ERROR", s.Name(), err.Error(), err, execctx.SeverityError)
		result.Errors = append(result.Errors, execErr)
		stageCtx.AddError(execErr)
		s.SetStatus(stage.StatusFailed)
		result.EndTime = time.Now()
		return result
	}

	processed, err := s.Execute(stageCtx)
	result.RecordsProcessed = processed

	if err != nil {
		if stageCtx.Cancelled() {
			s.SetStatus(stage.StatusCancelled)
			result.Status = stage.StatusCancelled
		} else {
			execErr := execctx.NewExecutionError("STAGE_EXECUTION_ERROR", s.Name(), err.Error(), err, execctx.SeverityError)
			result.Errors = append(result.Errors, execErr)
			stageCtx.AddError(execErr)
			s.SetStatus(stage.StatusFailed)
			result.Status = stage.StatusFailed
		}
	} else {
		s.SetStatus(stage.StatusCompleted)
		result.Status = stage.StatusCompleted
	}

	if cerr := s.Cleanup(stageCtx); cerr != nil {
		stageCtx.AddWarning(execctx.NewExecutionError("STAGE_CLEANUP_WARNING", s.Name(), cerr.Error(), cerr, execctx.SeverityWarning))
	}

	result.EndTime = time.Now()

	if p.Metrics != nil {
		p.Metrics.RecordStageExecution(s.Name(), string(result.Status), result.EndTime.Sub(result.StartTime))
	}

	return result
}

// finalize copies context errors/warnings into the result, de-duplicating
// by pointer identity, per spec.md §4.1 step 6.
func (p *Pipeline) finalize(result *ExecutionResult, ctx *execctx.ExecutionContext) {
	seen := make(map[*execctx.ExecutionError]bool)
	for _, e := range ctx.Errors() {
		if seen[e] {
			continue
		}
		seen[e] = true
		result.Errors = append(result.Errors, e)
	}

	seenWarn := make(map[*execctx.ExecutionError]bool)
	for _, w := range ctx.Warnings() {
		if seenWarn[w] {
			continue
		}
		seenWarn[w] = true
		result.Warnings = append(result.Warnings, w)
	}

	for _, e := range result.Errors {
		if e.Severity == execctx.SeverityFatal || e.Code == "STAGE_EXECUTION_ERROR" {
			result.RecordsFailed++
		}
	}

	p.logger.Info("pipeline execution completed",
		zap.String("pipeline", p.Name),
		zap.String("status", string(result.Status)),
		zap.Int64("records_processed", result.RecordsProcessed),
		zap.Int("errors", len(result.Errors)),
	)
}
