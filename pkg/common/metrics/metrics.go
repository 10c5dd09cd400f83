package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all etlengine metrics
const (
	Namespace = "etlengine"
)

// MetricsCollector aggregates all metrics for an etlengine component.
type MetricsCollector struct {
	// HTTP metrics (control-surface API)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Pipeline execution metrics
	PipelineExecutionsTotal    *prometheus.CounterVec
	PipelineExecutionDuration  *prometheus.HistogramVec
	PipelineRecordsProcessed   *prometheus.CounterVec
	PipelineRecordsFailed      *prometheus.CounterVec
	PipelineRecordsSkipped     *prometheus.CounterVec
	PipelineActiveExecutions   prometheus.Gauge

	// Stage metrics
	StageExecutionsTotal  *prometheus.CounterVec
	StageExecutionDuration *prometheus.HistogramVec

	// Transformation metrics
	TransformationsTotal    *prometheus.CounterVec
	TransformationDuration  *prometheus.HistogramVec

	// Rule engine metrics
	RuleEvaluationsTotal *prometheus.CounterVec
	RuleMatchesTotal     *prometheus.CounterVec
	RuleActionsTotal     *prometheus.CounterVec

	// Scheduler metrics
	ScheduledJobsTotal   prometheus.Gauge
	ScheduledJobTriggers *prometheus.CounterVec

	// Optimizer metrics
	OptimizerRecommendationsTotal *prometheus.CounterVec
	OptimizerCacheHits            prometheus.Counter
	OptimizerCacheMisses          prometheus.Counter
}

// NewMetricsCollector creates a new metrics collector for a component.
func NewMetricsCollector(component string) *MetricsCollector {
	return &MetricsCollector{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		PipelineExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "pipeline_executions_total",
				Help:      "Total number of pipeline executions by terminal status",
			},
			[]string{"pipeline", "status"},
		),
		PipelineExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "pipeline_execution_duration_seconds",
				Help:      "Pipeline execution duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"pipeline"},
		),
		PipelineRecordsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "pipeline_records_processed_total",
				Help:      "Total number of records successfully processed",
			},
			[]string{"pipeline"},
		),
		PipelineRecordsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "pipeline_records_failed_total",
				Help:      "Total number of records that failed processing",
			},
			[]string{"pipeline"},
		),
		PipelineRecordsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "pipeline_records_skipped_total",
				Help:      "Total number of records skipped by rule action",
			},
			[]string{"pipeline"},
		),
		PipelineActiveExecutions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "pipeline_active_executions",
				Help:      "Number of pipeline executions currently running",
			},
		),

		StageExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "stage_executions_total",
				Help:      "Total number of stage executions by terminal status",
			},
			[]string{"stage", "status"},
		),
		StageExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "stage_execution_duration_seconds",
				Help:      "Stage execution duration in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),

		TransformationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "transformations_total",
				Help:      "Total number of transformation applications by outcome",
			},
			[]string{"transformation", "outcome"},
		),
		TransformationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "transformation_duration_seconds",
				Help:      "Transformation application duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"transformation"},
		),

		RuleEvaluationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "rule_evaluations_total",
				Help:      "Total number of rule condition evaluations",
			},
			[]string{"rule"},
		),
		RuleMatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "rule_matches_total",
				Help:      "Total number of rules whose conditions matched",
			},
			[]string{"rule"},
		),
		RuleActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "rule_actions_total",
				Help:      "Total number of rule actions applied, by action kind",
			},
			[]string{"action"},
		),

		ScheduledJobsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "scheduled_jobs",
				Help:      "Number of cron-scheduled pipeline jobs registered",
			},
		),
		ScheduledJobTriggers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "scheduled_job_triggers_total",
				Help:      "Total number of times a scheduled job fired",
			},
			[]string{"pipeline"},
		),

		OptimizerRecommendationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimizer_recommendations_total",
				Help:      "Total number of optimizer recommendations issued",
			},
			[]string{"kind"},
		),
		OptimizerCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimizer_cache_hits_total",
				Help:      "Total number of optimizer recommendation cache hits",
			},
		),
		OptimizerCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimizer_cache_misses_total",
				Help:      "Total number of optimizer recommendation cache misses",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordPipelineExecution records a completed pipeline run.
func (m *MetricsCollector) RecordPipelineExecution(pipeline, status string, duration time.Duration, processed, failed, skipped int64) {
	m.PipelineExecutionsTotal.WithLabelValues(pipeline, status).Inc()
	m.PipelineExecutionDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	m.PipelineRecordsProcessed.WithLabelValues(pipeline).Add(float64(processed))
	m.PipelineRecordsFailed.WithLabelValues(pipeline).Add(float64(failed))
	m.PipelineRecordsSkipped.WithLabelValues(pipeline).Add(float64(skipped))
}

// RecordStageExecution records a completed stage run.
func (m *MetricsCollector) RecordStageExecution(stage, status string, duration time.Duration) {
	m.StageExecutionsTotal.WithLabelValues(stage, status).Inc()
	m.StageExecutionDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordTransformation records a single transformation application.
func (m *MetricsCollector) RecordTransformation(name, outcome string, duration time.Duration) {
	m.TransformationsTotal.WithLabelValues(name, outcome).Inc()
	m.TransformationDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordRuleEvaluation records a rule condition evaluation and, if it
// matched, the actions it triggered.
func (m *MetricsCollector) RecordRuleEvaluation(rule string, matched bool, actions []string) {
	m.RuleEvaluationsTotal.WithLabelValues(rule).Inc()
	if !matched {
		return
	}
	m.RuleMatchesTotal.WithLabelValues(rule).Inc()
	for _, action := range actions {
		m.RuleActionsTotal.WithLabelValues(action).Inc()
	}
}

// RecordOptimizerCacheHit records a recommendation cache hit.
func (m *MetricsCollector) RecordOptimizerCacheHit() {
	m.OptimizerCacheHits.Inc()
}

// RecordOptimizerCacheMiss records a recommendation cache miss.
func (m *MetricsCollector) RecordOptimizerCacheMiss() {
	m.OptimizerCacheMisses.Inc()
}

// statusClass converts an HTTP status code to its class (2xx, 3xx, 4xx, 5xx).
func statusClass(status int) string {
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}
