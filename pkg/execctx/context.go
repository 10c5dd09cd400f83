// Package execctx implements the per-run ExecutionContext and the
// stage-scoped context derived from it, per spec.md §3.
package execctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataforge/etlengine/pkg/common/config"
	"github.com/dataforge/etlengine/pkg/common/metrics"
	"github.com/dataforge/etlengine/pkg/record"
)

// Severity classifies an ExecutionError for reporting, per spec.md §7.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// ExecutionError is the shared error-list element type used by
// TransformationResult, StageExecutionResult, and PipelineExecutionResult.
type ExecutionError struct {
	Message   string
	Code      string
	Source    string
	Err       error
	Severity  Severity
	Timestamp time.Time
}

func (e *ExecutionError) Error() string {
	if e.Source != "" {
		return e.Source + ": " + e.Message
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError builds an ExecutionError stamped with the current time.
func NewExecutionError(code, source, message string, cause error, severity Severity) *ExecutionError {
	return &ExecutionError{
		Message:   message,
		Code:      code,
		Source:    source,
		Err:       cause,
		Severity:  severity,
		Timestamp: time.Now(),
	}
}

// Statistics accumulates run-wide counters. All mutators are safe for
// concurrent use since stage contexts share the parent's Statistics by
// reference (spec.md §3).
type Statistics struct {
	mu               sync.Mutex
	RecordsProcessed int64
	RecordsFailed    int64
	RecordsSkipped   int64
	Custom           map[string]int64
}

func newStatistics() *Statistics {
	return &Statistics{Custom: make(map[string]int64)}
}

func (s *Statistics) AddProcessed(n int64) {
	s.mu.Lock()
	s.RecordsProcessed += n
	s.mu.Unlock()
}

func (s *Statistics) AddFailed(n int64) {
	s.mu.Lock()
	s.RecordsFailed += n
	s.mu.Unlock()
}

func (s *Statistics) AddSkipped(n int64) {
	s.mu.Lock()
	s.RecordsSkipped += n
	s.mu.Unlock()
}

func (s *Statistics) Increment(key string, n int64) {
	s.mu.Lock()
	s.Custom[key] += n
	s.mu.Unlock()
}

// Snapshot returns a copy safe to read without holding the lock.
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	custom := make(map[string]int64, len(s.Custom))
	for k, v := range s.Custom {
		custom[k] = v
	}
	return Statistics{
		RecordsProcessed: s.RecordsProcessed,
		RecordsFailed:    s.RecordsFailed,
		RecordsSkipped:   s.RecordsSkipped,
		Custom:           custom,
	}
}

// errorList is a mutex-guarded append-only slice, shared by pointer
// between a parent ExecutionContext and every context derived from it so
// a stage's errors/warnings are visible to the run as a whole.
type errorList struct {
	mu    sync.Mutex
	items []*ExecutionError
}

func newErrorList() *errorList { return &errorList{} }

func (l *errorList) add(err *ExecutionError) {
	l.mu.Lock()
	l.items = append(l.items, err)
	l.mu.Unlock()
}

func (l *errorList) snapshot() []*ExecutionError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*ExecutionError, len(l.items))
	copy(out, l.items)
	return out
}

// PropertyBag is a string-keyed property store. Writes made by a parent
// context are observed by stage contexts derived afterward (spec.md §3);
// writes made by a derived stage context do not propagate back up.
type PropertyBag struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

func newPropertyBag() *PropertyBag {
	return &PropertyBag{values: make(map[string]interface{})}
}

func (p *PropertyBag) Set(key string, value interface{}) {
	p.mu.Lock()
	p.values[key] = value
	p.mu.Unlock()
}

func (p *PropertyBag) Get(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// snapshot returns a shallow copy of the current properties, used to seed a
// derived context.
func (p *PropertyBag) snapshot() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]interface{}, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func fromSnapshot(values map[string]interface{}) *PropertyBag {
	return &PropertyBag{values: values}
}

// ExecutionContext is the per-run container described in spec.md §3: an
// execution id, pipeline configuration, logger, cancellation signal, start
// timestamp, property bag, statistics, current-data slot, and append-only
// error/warning lists.
type ExecutionContext struct {
	ExecutionID string
	PipelineID  string
	StageName   string
	Config      *config.PipelineConfig
	Logger      *zap.Logger
	StartTime   time.Time

	// Metrics is an optional collaborator used by stages and their
	// sub-components (transformations, rules) to record Prometheus
	// series. Nil unless a pipeline sets it at the start of Execute.
	Metrics *metrics.MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc

	Properties *PropertyBag
	Stats      *Statistics

	current record.Record

	errors   *errorList
	warnings *errorList
}

// New creates a fresh root ExecutionContext for a pipeline run.
func New(parent context.Context, pipelineID string, cfg *config.PipelineConfig, logger *zap.Logger) *ExecutionContext {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(parent)
	return &ExecutionContext{
		ExecutionID: uuid.NewString(),
		PipelineID:  pipelineID,
		Config:      cfg,
		Logger:      logger,
		StartTime:   time.Now(),
		ctx:         runCtx,
		cancel:      cancel,
		Properties:  newPropertyBag(),
		Stats:       newStatistics(),
		errors:      newErrorList(),
		warnings:    newErrorList(),
	}
}

// Context returns the cancellation-aware context.Context for this run.
func (c *ExecutionContext) Context() context.Context { return c.ctx }

// Cancel triggers cancellation of this execution and every context derived
// from it.
func (c *ExecutionContext) Cancel() { c.cancel() }

// Cancelled reports whether the execution has been cancelled.
func (c *ExecutionContext) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Derive returns a child ExecutionContext for a stage: it shallow-copies
// the parent's properties and shares errors, warnings, cancellation, and
// statistics by reference, per spec.md §3.
func (c *ExecutionContext) Derive(stageName string) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: c.ExecutionID,
		PipelineID:  c.PipelineID,
		StageName:   stageName,
		Config:      c.Config,
		Logger:      c.Logger.With(zap.String("stage", stageName)),
		StartTime:   c.StartTime,
		Metrics:     c.Metrics,
		ctx:         c.ctx,
		cancel:      c.cancel,
		Properties:  fromSnapshot(c.Properties.snapshot()),
		Stats:       c.Stats,
		errors:      c.errors,
		warnings:    c.warnings,
	}
}

// AddError appends an error. Append-only per spec.md §3 invariant; shared
// by reference with every context derived from the same run.
func (c *ExecutionContext) AddError(err *ExecutionError) {
	c.errors.add(err)
}

// AddWarning appends a warning.
func (c *ExecutionContext) AddWarning(err *ExecutionError) {
	c.warnings.add(err)
}

// Errors returns a snapshot of accumulated errors.
func (c *ExecutionContext) Errors() []*ExecutionError {
	return c.errors.snapshot()
}

// Warnings returns a snapshot of accumulated warnings.
func (c *ExecutionContext) Warnings() []*ExecutionError {
	return c.warnings.snapshot()
}

// SetCurrent stores the record currently being processed, for diagnostics
// and for rule-action templating.
func (c *ExecutionContext) SetCurrent(r *record.Record) { c.current = *r }

// Current returns the record currently being processed.
func (c *ExecutionContext) Current() *record.Record { return &c.current }
