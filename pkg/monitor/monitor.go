// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package monitor tracks per-transformation performance, aggregating
// session-scoped measurements into a running mutex-guarded statistics
// record, per spec.md §4.5.
package monitor

import (
	"sync"
	"time"
)

// TransformationStats is the merged, all-time view of one
// transformation's performance.
type TransformationStats struct {
	TransformationID     string
	Name                 string
	TotalSessions        int64
	TotalRecordsProcessed int64
	TotalRecordsFailed   int64
	TotalDuration        time.Duration
	AverageDuration       time.Duration
	TotalRecordTime       time.Duration
	AverageRecordTime     time.Duration
	MinRecordTime         time.Duration
	MaxRecordTime         time.Duration
	PeakMemoryBytes       int64
	AverageMemoryBytes    int64
	FirstRunAt            time.Time
	LastRunAt             time.Time
	RecentSessions        []SessionSummary
}

// SessionSummary is the immutable record kept in the recent-sessions
// ring for one closed session.
type SessionSummary struct {
	StartedAt        time.Time
	EndedAt          time.Time
	RecordsProcessed int64
	RecordsFailed    int64
	Duration         time.Duration
	RecordTime       time.Duration
	MinRecordTime    time.Duration
	MaxRecordTime    time.Duration
	PeakMemoryBytes  int64
	Errors           []string
	Warnings         []string
}

const maxRecentSessions = 100

// Session is a handle returned by Monitor.StartSession. Its methods are
// guarded by the session's own mutex, so it is safe for concurrent use.
type Session struct {
	transformationID string
	name             string
	startedAt        time.Time

	mu               sync.Mutex
	recordsProcessed int64
	recordsFailed    int64
	totalRecordTime  time.Duration
	recordCount      int64
	minRecordTime    time.Duration
	maxRecordTime    time.Duration
	peakMemoryBytes  int64
	memorySamples    int64
	totalMemoryBytes int64
	errors           []string
	warnings         []string
	closed           bool

	monitor *Monitor
}

// RecordProcessing registers the outcome of one record's processing.
func (s *Session) RecordProcessing(duration time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRecordTime += duration
	if s.recordCount == 0 || duration < s.minRecordTime {
		s.minRecordTime = duration
	}
	if duration > s.maxRecordTime {
		s.maxRecordTime = duration
	}
	s.recordCount++
	if success {
		s.recordsProcessed++
	} else {
		s.recordsFailed++
	}
}

// RecordMemoryUsage registers an observed memory sample in bytes.
func (s *Session) RecordMemoryUsage(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes > s.peakMemoryBytes {
		s.peakMemoryBytes = bytes
	}
	s.totalMemoryBytes += bytes
	s.memorySamples++
}

// RecordError appends an error message to the session.
func (s *Session) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err.Error())
}

// RecordWarning appends a warning message to the session.
func (s *Session) RecordWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// Statistics returns a snapshot of the session's current state.
func (s *Session) Statistics() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(time.Now())
}

func (s *Session) snapshotLocked(end time.Time) SessionSummary {
	errs := make([]string, len(s.errors))
	copy(errs, s.errors)
	warns := make([]string, len(s.warnings))
	copy(warns, s.warnings)
	return SessionSummary{
		StartedAt:        s.startedAt,
		EndedAt:          end,
		RecordsProcessed: s.recordsProcessed,
		RecordsFailed:    s.recordsFailed,
		Duration:         end.Sub(s.startedAt),
		RecordTime:       s.totalRecordTime,
		MinRecordTime:    s.minRecordTime,
		MaxRecordTime:    s.maxRecordTime,
		PeakMemoryBytes:  s.peakMemoryBytes,
		Errors:           errs,
		Warnings:         warns,
	}
}

// Close finalizes the session and merges its aggregates into the
// transformation-level stats under the transformation's own lock.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	summary := s.snapshotLocked(time.Now())
	s.mu.Unlock()

	s.monitor.mergeSession(s.transformationID, s.name, summary)
}

// Monitor keeps a per-transformation lock-guarded aggregate plus a
// capped history of recent sessions, grounded on the teacher's
// per-pipeline stats map and moving-average merge.
type Monitor struct {
	mu    sync.RWMutex
	stats map[string]*guardedStats
}

type guardedStats struct {
	mu   sync.Mutex
	data TransformationStats
}

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{stats: make(map[string]*guardedStats)}
}

// StartSession opens a new measurement session for a transformation.
func (m *Monitor) StartSession(transformationID, name string) *Session {
	return &Session{
		transformationID: transformationID,
		name:             name,
		startedAt:        time.Now(),
		monitor:          m,
	}
}

func (m *Monitor) entry(transformationID string) *guardedStats {
	m.mu.RLock()
	g, ok := m.stats[transformationID]
	m.mu.RUnlock()
	if ok {
		return g
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok = m.stats[transformationID]
	if ok {
		return g
	}
	g = &guardedStats{data: TransformationStats{TransformationID: transformationID}}
	m.stats[transformationID] = g
	return g
}

func (m *Monitor) mergeSession(transformationID, name string, summary SessionSummary) {
	g := m.entry(transformationID)

	g.mu.Lock()
	defer g.mu.Unlock()

	d := &g.data
	sessionRecords := summary.RecordsProcessed + summary.RecordsFailed
	hadRecordsBefore := d.TotalRecordsProcessed+d.TotalRecordsFailed > 0

	d.Name = name
	d.TotalSessions++
	d.TotalRecordsProcessed += summary.RecordsProcessed
	d.TotalRecordsFailed += summary.RecordsFailed
	d.TotalDuration += summary.Duration
	d.AverageDuration = d.TotalDuration / time.Duration(d.TotalSessions)

	d.TotalRecordTime += summary.RecordTime
	if totalRecords := d.TotalRecordsProcessed + d.TotalRecordsFailed; totalRecords > 0 {
		d.AverageRecordTime = d.TotalRecordTime / time.Duration(totalRecords)
	}
	if sessionRecords > 0 {
		if !hadRecordsBefore || summary.MinRecordTime < d.MinRecordTime {
			d.MinRecordTime = summary.MinRecordTime
		}
		if summary.MaxRecordTime > d.MaxRecordTime {
			d.MaxRecordTime = summary.MaxRecordTime
		}
	}

	if summary.PeakMemoryBytes > d.PeakMemoryBytes {
		d.PeakMemoryBytes = summary.PeakMemoryBytes
	}
	if d.TotalSessions == 1 {
		d.AverageMemoryBytes = summary.PeakMemoryBytes
	} else {
		d.AverageMemoryBytes = (d.AverageMemoryBytes*(d.TotalSessions-1) + summary.PeakMemoryBytes) / d.TotalSessions
	}
	if d.FirstRunAt.IsZero() {
		d.FirstRunAt = summary.StartedAt
	}
	d.LastRunAt = summary.EndedAt

	d.RecentSessions = append(d.RecentSessions, summary)
	if len(d.RecentSessions) > maxRecentSessions {
		d.RecentSessions = d.RecentSessions[len(d.RecentSessions)-maxRecentSessions:]
	}
}

// Stats returns a copy of the merged stats for a transformation, or
// false if no session has ever been recorded for it.
func (m *Monitor) Stats(transformationID string) (TransformationStats, bool) {
	m.mu.RLock()
	g, ok := m.stats[transformationID]
	m.mu.RUnlock()
	if !ok {
		return TransformationStats{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	cp := g.data
	cp.RecentSessions = make([]SessionSummary, len(g.data.RecentSessions))
	copy(cp.RecentSessions, g.data.RecentSessions)
	return cp, true
}
