package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TickLaunchesDueJobAndAdvancesNextRun(t *testing.T) {
	o := New(nil, nil)
	sched := o.Scheduler()

	var mu sync.Mutex
	var launches int
	launch := func(ctx context.Context) {
		mu.Lock()
		launches++
		mu.Unlock()
	}

	require.NoError(t, sched.AddJob("job-1", "p1", "*/1 * * * *", launch))

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	next, _, active := jobs[0].Snapshot()
	assert.True(t, active)
	assert.True(t, next.After(time.Now()))

	// Force the job due by simulating a tick far enough in the future.
	future := next.Add(time.Minute)
	sched.Tick(future)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	got := launches
	mu.Unlock()
	assert.Equal(t, 1, got)

	newNext, lastRun, _ := jobs[0].Snapshot()
	assert.True(t, newNext.After(future))
	assert.Equal(t, future, lastRun)
}

func TestScheduler_InactiveJobNeverLaunches(t *testing.T) {
	o := New(nil, nil)
	sched := o.Scheduler()

	launched := false
	require.NoError(t, sched.AddJob("job-1", "p1", "*/1 * * * *", func(ctx context.Context) { launched = true }))
	sched.SetJobActive("job-1", false)

	sched.Tick(time.Now().Add(time.Hour))
	time.Sleep(10 * time.Millisecond)

	assert.False(t, launched)
}

func TestScheduler_ConcurrentTicksDoNotDoubleLaunch(t *testing.T) {
	o := New(nil, nil)
	sched := o.Scheduler()

	var mu sync.Mutex
	var launches int
	require.NoError(t, sched.AddJob("job-1", "p1", "*/1 * * * *", func(ctx context.Context) {
		mu.Lock()
		launches++
		mu.Unlock()
	}))

	due := time.Now().Add(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Tick(due)
		}()
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, launches)
}

func TestScheduler_MissingCronExpressionDefaultsHourly(t *testing.T) {
	o := New(nil, nil)
	sched := o.Scheduler()
	require.NoError(t, sched.AddJob("job-1", "p1", "", func(ctx context.Context) {}))

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, defaultCronExpression, jobs[0].CronExpression)
}

func TestScheduler_MultiTickOverVirtualClock(t *testing.T) {
	o := New(nil, nil)
	sched := o.Scheduler()

	var mu sync.Mutex
	var launches int
	require.NoError(t, sched.AddJob("job-1", "p1", "*/1 * * * *", func(ctx context.Context) {
		mu.Lock()
		launches++
		mu.Unlock()
	}))

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	firstRun, _, _ := jobs[0].Snapshot()
	t0 := firstRun.Add(-1 * time.Minute) // anchor so firstRun lands exactly at t0+1m

	for _, offset := range []time.Duration{1 * time.Minute, 2 * time.Minute, 3 * time.Minute, 3*time.Minute + 30*time.Second} {
		sched.Tick(t0.Add(offset))
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, launches)
}
