package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/etlengine/pkg/monitor"
)

type fakeMonitor struct {
	stats map[string]monitor.TransformationStats
}

func (f *fakeMonitor) Stats(id string) (monitor.TransformationStats, bool) {
	s, ok := f.stats[id]
	return s, ok
}

func TestRecommend_UnknownTransformationReportsNotFound(t *testing.T) {
	o := New(&fakeMonitor{stats: map[string]monitor.TransformationStats{}}, 0)
	_, ok := o.Recommend("missing")
	assert.False(t, ok)
}

func TestRecommend_SlowRecordsRecommendParallel(t *testing.T) {
	mon := &fakeMonitor{stats: map[string]monitor.TransformationStats{
		"t1": {
			TransformationID:      "t1",
			TotalRecordsProcessed: 100,
			TotalDuration:         2 * time.Second, // throughput 50/s
			AverageRecordTime:     20 * time.Millisecond,
		},
	}}
	o := New(mon, 1000)
	rec, ok := o.Recommend("t1")
	require.True(t, ok)
	assert.True(t, rec.RecommendParallel)
	assert.GreaterOrEqual(t, rec.DegreeOfParallelism, 2)
	assert.Greater(t, rec.EstimatedSpeedup, 0.0)
}

func TestRecommend_UsesRecordTimeNotSessionWallClock(t *testing.T) {
	// A session can stay open far longer than the sum of its record
	// processing time (idle time between records); the recommendation
	// must key off AverageRecordTime, not TotalDuration.
	mon := &fakeMonitor{stats: map[string]monitor.TransformationStats{
		"t1": {
			TransformationID:      "t1",
			TotalRecordsProcessed: 100,
			TotalDuration:         time.Hour,
			AverageRecordTime:     time.Millisecond,
		},
	}}
	o := New(mon, 1000)
	rec, ok := o.Recommend("t1")
	require.True(t, ok)
	assert.False(t, rec.RecommendParallel)
}

func TestRecommend_LargePeakMemoryFlagsIssue(t *testing.T) {
	mon := &fakeMonitor{stats: map[string]monitor.TransformationStats{
		"t1": {
			TransformationID:      "t1",
			TotalRecordsProcessed: 10,
			TotalDuration:         time.Second,
			PeakMemoryBytes:       600 * 1024 * 1024,
			AverageMemoryBytes:    10 * 1024 * 1024,
		},
	}}
	o := New(mon, 1000)
	rec, ok := o.Recommend("t1")
	require.True(t, ok)
	assert.Len(t, rec.MemoryRecommendations, 3)
}

func TestRecommend_IsCachedAcrossCalls(t *testing.T) {
	mon := &fakeMonitor{stats: map[string]monitor.TransformationStats{
		"t1": {TransformationID: "t1", TotalRecordsProcessed: 1, TotalDuration: time.Millisecond},
	}}
	o := New(mon, 1000)

	first, _ := o.Recommend("t1")
	mon.stats["t1"] = monitor.TransformationStats{TransformationID: "t1", TotalRecordsProcessed: 999999, TotalDuration: time.Hour}
	second, _ := o.Recommend("t1")

	assert.Equal(t, first, second)
}

func TestLetterGrade_Boundaries(t *testing.T) {
	assert.Equal(t, "A", letterGrade(95))
	assert.Equal(t, "B", letterGrade(85))
	assert.Equal(t, "C", letterGrade(75))
	assert.Equal(t, "D", letterGrade(65))
	assert.Equal(t, "F", letterGrade(50))
}
