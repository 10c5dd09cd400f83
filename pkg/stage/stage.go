// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package stage implements the Extract/Transform/Load unit that a pipeline
// sequences, with its prepare/execute/cleanup lifecycle and status state
// machine.
package stage

import (
	"fmt"
	"sync"
	"time"

	"github.com/dataforge/etlengine/pkg/execctx"
)

// Type tags how a stage participates in a pipeline.
type Type string

const (
	TypeExtract   Type = "extract"
	TypeTransform Type = "transform"
	TypeLoad      Type = "load"
	TypeCustom    Type = "custom"
)

// Status is a stage's lifecycle state. Transitions are monotonic within a
// run: Ready -> Running -> {Completed, Failed, Cancelled}. Skipped is only
// assignable before Running.
type Status string

const (
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// Result is the outcome of a single stage execution.
type Result struct {
	StageName        string
	StageID          string
	Status           Status
	StartTime        time.Time
	EndTime          time.Time
	RecordsProcessed int64
	Errors           []*execctx.ExecutionError
	Warnings         []*execctx.ExecutionError
}

// Stage is the unit a Pipeline sequences: identity, a type tag, an order,
// and a concurrency-safe status alongside the prepare/execute/cleanup
// lifecycle.
type Stage interface {
	ID() string
	Name() string
	Description() string
	Type() Type
	Order() int
	Status() Status
	SetStatus(Status)

	// Prepare runs before Execute; it defaults to a no-op and may be
	// overridden by embedding Base and shadowing the method.
	Prepare(ctx *execctx.ExecutionContext) error

	// Execute produces the count of records processed, given a stage
	// context derived from the run's ExecutionContext.
	Execute(ctx *execctx.ExecutionContext) (int64, error)

	// Cleanup runs after Execute, best-effort; its failures are logged as
	// warnings, never fatal to the run.
	Cleanup(ctx *execctx.ExecutionContext) error
}

// Base provides the identity, ordering, and status bookkeeping shared by
// every concrete stage. Concrete stages embed Base and implement Execute;
// Prepare/Cleanup default to no-ops inherited from Base and may be
// shadowed by a concrete type that defines its own method of the same
// name.
type Base struct {
	id          string
	name        string
	description string
	stageType   Type
	order       int

	mu     sync.Mutex
	status Status
}

// NewBase validates and constructs the shared stage bookkeeping. Per
// spec.md §4.1, a stage name must be non-empty and order non-negative.
func NewBase(id, name, description string, stageType Type, order int) (Base, error) {
	if name == "" {
		return Base{}, fmt.Errorf("stage name is required")
	}
	if order < 0 {
		return Base{}, fmt.Errorf("stage %q: order must be non-negative", name)
	}
	return Base{
		id:          id,
		name:        name,
		description: description,
		stageType:   stageType,
		order:       order,
		status:      StatusReady,
	}, nil
}

func (b *Base) ID() string          { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }
func (b *Base) Type() Type          { return b.stageType }
func (b *Base) Order() int          { return b.order }

func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) SetStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Prepare is a no-op default; concrete stages override it when they need
// to acquire resources before Execute.
func (b *Base) Prepare(ctx *execctx.ExecutionContext) error { return nil }

// Cleanup is a no-op default; concrete stages override it when they need
// to release resources after Execute.
func (b *Base) Cleanup(ctx *execctx.ExecutionContext) error { return nil }
