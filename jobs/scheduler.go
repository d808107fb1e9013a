/*
scheduler.go - Periodic job scheduler

PURPOSE:
  Triggers the three jobs on their configured intervals using a cron
  scheduler. Each job type has exactly one worker slot: a trigger that
  fires while the previous execution is still running is skipped, so
  two instances of the same job are never in flight together.

STARTUP:
  The fetch job runs once immediately on Start so the store is
  populated before the first calendar/notify ticks.
*/
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the three jobs on their intervals.
type Scheduler struct {
	Runner *Runner

	FetchInterval    time.Duration
	CalendarInterval time.Duration
	NotifyInterval   time.Duration

	cron  *cron.Cron
	locks map[string]*sync.Mutex
}

// NewScheduler creates a scheduler around the given runner.
func NewScheduler(runner *Runner, fetchEvery, calendarEvery, notifyEvery time.Duration) *Scheduler {
	return &Scheduler{
		Runner:           runner,
		FetchInterval:    fetchEvery,
		CalendarInterval: calendarEvery,
		NotifyInterval:   notifyEvery,
		locks: map[string]*sync.Mutex{
			JobFetch:    {},
			JobCalendar: {},
			JobNotify:   {},
		},
	}
}

// Start registers the cron entries and launches the scheduler. The
// initial fetch runs synchronously so callers know the store is primed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()

	entries := []struct {
		jobType  string
		interval time.Duration
		run      func(context.Context) error
	}{
		{JobFetch, s.FetchInterval, s.Runner.RunFetch},
		{JobCalendar, s.CalendarInterval, s.Runner.RunCalendar},
		{JobNotify, s.NotifyInterval, s.Runner.RunNotify},
	}

	for _, entry := range entries {
		entry := entry
		spec := fmt.Sprintf("@every %s", entry.interval)
		if _, err := s.cron.AddFunc(spec, func() {
			s.runExclusive(ctx, entry.jobType, entry.run)
		}); err != nil {
			return fmt.Errorf("scheduling %s: %w", entry.jobType, err)
		}
		log.Printf("[Scheduler] Scheduled %s every %s", entry.jobType, entry.interval)
	}

	log.Printf("[Scheduler] Running initial fetch")
	s.runExclusive(ctx, JobFetch, s.Runner.RunFetch)

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		log.Printf("[Scheduler] Stopped")
	}
}

// runExclusive enforces the one-in-flight-per-job-type rule. An
// overlapping trigger is skipped, not queued; the next interval tick
// will pick up the work.
func (s *Scheduler) runExclusive(ctx context.Context, jobType string, run func(context.Context) error) {
	lock := s.locks[jobType]
	if !lock.TryLock() {
		log.Printf("[Scheduler] %s still running, skipping trigger", jobType)
		return
	}
	defer lock.Unlock()

	if err := run(ctx); err != nil {
		log.Printf("[Scheduler] %s failed: %v", jobType, err)
	}
}
