// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package optimizer derives batch-size, parallelism, and memory
// recommendations from monitor.TransformationStats, per spec.md §4.5.
// Recommendations are cached for 30 minutes per transformation, mirroring
// the teacher's TTL-map decision cache.
package optimizer

import (
	"runtime"
	"sync"
	"time"

	"github.com/dataforge/etlengine/pkg/monitor"
)

// IssueSeverity classifies a recommendation issue for score deduction.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
)

var severityPenalty = map[IssueSeverity]int{
	SeverityCritical: 30,
	SeverityHigh:     20,
	SeverityMedium:   10,
	SeverityLow:      5,
}

// Issue is one finding backing the overall score.
type Issue struct {
	Severity IssueSeverity
	Message  string
}

// MemoryRecommendation names one memory finding.
type MemoryRecommendation struct {
	Message string
}

// Recommendation is the full output of Optimizer.Recommend for one
// transformation.
type Recommendation struct {
	TransformationID     string
	OptimalBatchSize      int
	RecommendParallel     bool
	DegreeOfParallelism   int
	EstimatedSpeedup      float64
	MemoryRecommendations []MemoryRecommendation
	Issues                []Issue
	Score                 int
	Grade                 string
}

type cacheEntry struct {
	value      Recommendation
	expiration time.Time
}

// Optimizer produces recommendations from a Monitor's accumulated
// statistics, caching each transformation's recommendation for 30
// minutes, grounded on the teacher's ticker-evicted TTL cache.
type Optimizer struct {
	mon Monitor

	targetThroughput float64
	cores            int

	mu    sync.Mutex
	cache map[string]*cacheEntry
	ttl   time.Duration
}

// Monitor is the subset of monitor.Monitor's API the optimizer depends
// on, so tests can substitute a fake.
type Monitor interface {
	Stats(transformationID string) (monitor.TransformationStats, bool)
}

// New constructs an Optimizer. targetThroughput is records/second; a
// targetThroughput of 0 defaults to 1000.
func New(mon Monitor, targetThroughput float64) *Optimizer {
	if targetThroughput <= 0 {
		targetThroughput = 1000
	}
	o := &Optimizer{
		mon:              mon,
		targetThroughput: targetThroughput,
		cores:            runtime.NumCPU(),
		cache:            make(map[string]*cacheEntry),
		ttl:              30 * time.Minute,
	}
	go o.evictExpired()
	return o
}

func (o *Optimizer) evictExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		o.mu.Lock()
		for k, e := range o.cache {
			if now.After(e.expiration) {
				delete(o.cache, k)
			}
		}
		o.mu.Unlock()
	}
}

// Recommend returns the cached recommendation for a transformation if
// still fresh, else computes and caches a new one.
func (o *Optimizer) Recommend(transformationID string) (Recommendation, bool) {
	o.mu.Lock()
	if e, ok := o.cache[transformationID]; ok && time.Now().Before(e.expiration) {
		rec := e.value
		o.mu.Unlock()
		return rec, true
	}
	o.mu.Unlock()

	stats, ok := o.mon.Stats(transformationID)
	if !ok {
		return Recommendation{}, false
	}

	rec := o.compute(stats)

	o.mu.Lock()
	o.cache[transformationID] = &cacheEntry{value: rec, expiration: time.Now().Add(o.ttl)}
	o.mu.Unlock()

	return rec, true
}

func (o *Optimizer) compute(stats monitor.TransformationStats) Recommendation {
	rec := Recommendation{TransformationID: stats.TransformationID}

	avgRecordMillis := avgRecordTimeMillis(stats)
	throughput := throughputPerSecond(stats)
	errorRate := errorRate(stats)
	successRate := 1 - errorRate

	rec.OptimalBatchSize = optimalBatchSize(throughput, o.targetThroughput, avgRecordMillis)

	rec.RecommendParallel = avgRecordMillis > 10 && throughput < 500 && errorRate < 0.10
	if rec.RecommendParallel {
		dop := avgRecordMillis / 10
		if dop < 2 {
			dop = 2
		}
		if dop > float64(o.cores) {
			dop = float64(o.cores)
		}
		rec.DegreeOfParallelism = int(dop)
		speedupByDop := dop * 0.8
		speedupByCores := float64(o.cores) * 0.6
		if speedupByDop < speedupByCores {
			rec.EstimatedSpeedup = speedupByDop
		} else {
			rec.EstimatedSpeedup = speedupByCores
		}
	}

	rec.MemoryRecommendations = memoryRecommendations(stats)

	for _, mr := range rec.MemoryRecommendations {
		rec.Issues = append(rec.Issues, Issue{Severity: SeverityMedium, Message: mr.Message})
	}

	score := 100
	for _, issue := range rec.Issues {
		score -= severityPenalty[issue.Severity]
	}
	if throughput > 1000 {
		score += 10
	}
	if errorRate < 0.01 {
		score += 10
	}
	if successRate > 0.99 {
		score += 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	rec.Score = score
	rec.Grade = letterGrade(score)

	return rec
}

// avgRecordTimeMillis reads the monitor's actual per-record processing
// average (summed from every RecordProcessing call) rather than session
// wall-clock time, so it reflects record cost even when sessions overlap
// or include idle time between records.
func avgRecordTimeMillis(stats monitor.TransformationStats) float64 {
	if stats.TotalRecordsProcessed+stats.TotalRecordsFailed == 0 {
		return 0
	}
	return float64(stats.AverageRecordTime) / float64(time.Millisecond)
}

func throughputPerSecond(stats monitor.TransformationStats) float64 {
	seconds := stats.TotalDuration.Seconds()
	if seconds == 0 {
		return 0
	}
	return float64(stats.TotalRecordsProcessed) / seconds
}

func errorRate(stats monitor.TransformationStats) float64 {
	total := stats.TotalRecordsProcessed + stats.TotalRecordsFailed
	if total == 0 {
		return 0
	}
	return float64(stats.TotalRecordsFailed) / float64(total)
}

// optimalBatchSize implements the three-branch formula from spec.md
// §4.5: scale up when throughput lags target and records are cheap,
// scale down when records are expensive, else a flat default.
func optimalBatchSize(throughput, target, avgMillis float64) int {
	switch {
	case throughput < target && avgMillis < 100:
		size := target / currentOrOne(throughput) * 100
		if size > 1000 {
			size = 1000
		}
		return int(size)
	case avgMillis > 1000:
		size := 100000 / avgMillis
		if size < 10 {
			size = 10
		}
		return int(size)
	default:
		return 100
	}
}

func currentOrOne(throughput float64) float64 {
	if throughput <= 0 {
		return 1
	}
	return throughput
}

// memoryRecommendations implements the three memory thresholds from
// spec.md §4.5.
func memoryRecommendations(stats monitor.TransformationStats) []MemoryRecommendation {
	var recs []MemoryRecommendation
	const mb = 1024 * 1024

	if stats.PeakMemoryBytes > 100*mb {
		recs = append(recs, MemoryRecommendation{Message: "peak memory exceeds 100MB; consider smaller batches"})
	}
	if stats.PeakMemoryBytes > 500*mb {
		recs = append(recs, MemoryRecommendation{Message: "peak memory exceeds 500MB; consider streaming"})
	}
	if stats.AverageMemoryBytes > 0 && float64(stats.PeakMemoryBytes) > 3*float64(stats.AverageMemoryBytes) {
		recs = append(recs, MemoryRecommendation{Message: "peak memory is over 3x average; consider pooling"})
	}
	return recs
}

func letterGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
