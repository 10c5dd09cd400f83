// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// sentinelFarFuture is the nextRunTime assigned to a disabled job so it
// is never selected by a scheduler tick.
var sentinelFarFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// defaultCronExpression is used when a job is registered without a
// cron expression, per spec.md §4.4.
const defaultCronExpression = "0 * * * *"

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// LaunchFunc starts one run of a scheduled job in the background. The
// scheduler does not wait for it to complete.
type LaunchFunc func(ctx context.Context)

// Job is one scheduled pipeline entry. NextRunTime, LastRunTime, and
// Active are guarded by mu, per spec.md §5's per-job lock requirement.
type Job struct {
	ID             string
	PipelineID     string
	CronExpression string
	Launch         LaunchFunc

	schedule cron.Schedule

	mu          sync.Mutex
	active      bool
	nextRunTime time.Time
	lastRunTime time.Time
}

func newJob(id, pipelineID, cronExpr string, launch LaunchFunc, now time.Time) (*Job, error) {
	if cronExpr == "" {
		cronExpr = defaultCronExpression
	}
	schedule, err := standardParser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	if spec, ok := schedule.(*cron.SpecSchedule); ok {
		spec.Location = time.UTC
	}
	return &Job{
		ID:             id,
		PipelineID:     pipelineID,
		CronExpression: cronExpr,
		Launch:         launch,
		schedule:       schedule,
		active:         true,
		nextRunTime:    schedule.Next(now),
	}, nil
}

// SetActive enables or disables the job. A disabled job's NextRunTime is
// pushed to a sentinel far-future value so it is never launched.
func (j *Job) SetActive(active bool, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = active
	if !active {
		j.nextRunTime = sentinelFarFuture
	} else {
		j.nextRunTime = j.schedule.Next(now)
	}
}

// Snapshot returns NextRunTime/LastRunTime/Active under the job's lock.
func (j *Job) Snapshot() (nextRunTime, lastRunTime time.Time, active bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextRunTime, j.lastRunTime, j.active
}

// tryClaim atomically advances NextRunTime past now if the job is due,
// returning whether this caller won the race to launch it. This is the
// compare-and-swap described in spec.md §4.4 that prevents a job from
// being double-launched by overlapping ticks.
func (j *Job) tryClaim(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active || j.nextRunTime.After(now) {
		return false
	}
	j.lastRunTime = now
	j.nextRunTime = j.schedule.Next(now)
	return true
}

// Scheduler drives registered Jobs on a fixed tick, grounded on the
// teacher's ticker-based TTL-cache eviction loop adapted to job
// dispatch instead of cache eviction.
type Scheduler struct {
	orchestrator *Orchestrator
	logger       *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	tickInterval time.Duration
	stopCh       chan struct{}
	stopped      bool
}

func newScheduler(o *Orchestrator, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: o,
		logger:       logger,
		jobs:         make(map[string]*Job),
		tickInterval: 60 * time.Second,
	}
}

// AddJob registers a new scheduled job. An empty cronExpression
// defaults to hourly ticks.
func (s *Scheduler) AddJob(id, pipelineID, cronExpression string, launch LaunchFunc) error {
	job, err := newJob(id, pipelineID, cronExpression, launch, time.Now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = job
	return nil
}

// RemoveJob deregisters a scheduled job.
func (s *Scheduler) RemoveJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// SetJobActive toggles a job's active flag.
func (s *Scheduler) SetJobActive(id string, active bool) bool {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	job.SetActive(active, time.Now())
	return true
}

// Jobs returns every registered job, for inspection.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// SetTickInterval overrides the default 60-second tick; must be called
// before Start.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickInterval = d
}

// Start runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	interval := s.tickInterval
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(time.Now())
		}
	}
}

// Stop halts the scheduler loop started by Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.stopCh == nil {
		return
	}
	s.stopped = true
	close(s.stopCh)
}

// Tick runs one scheduling pass: every due, active job is launched in
// its own goroutine, fire-and-forget, after winning the per-job
// compare-and-swap claim.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.RLock()
	due := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		due = append(due, j)
	}
	s.mu.RUnlock()

	for _, job := range due {
		if !job.tryClaim(now) {
			continue
		}
		launch := job.Launch
		go launch(context.Background())
	}
}
