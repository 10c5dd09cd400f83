package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPipelineExecution(t *testing.T) {
	m := NewMetricsCollector("test_pipeline_exec")
	m.RecordPipelineExecution("daily-import", "completed", 2*time.Second, 10, 1, 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PipelineExecutionsTotal.WithLabelValues("daily-import", "completed")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.PipelineRecordsProcessed.WithLabelValues("daily-import")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PipelineRecordsFailed.WithLabelValues("daily-import")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PipelineRecordsSkipped.WithLabelValues("daily-import")))
}

func TestRecordRuleEvaluation(t *testing.T) {
	m := NewMetricsCollector("test_rule_eval")
	m.RecordRuleEvaluation("flag-high-value", true, []string{"set_field", "log_message"})
	m.RecordRuleEvaluation("flag-high-value", false, nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RuleEvaluationsTotal.WithLabelValues("flag-high-value")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RuleMatchesTotal.WithLabelValues("flag-high-value")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RuleActionsTotal.WithLabelValues("set_field")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
