/*
Package jobs drives the three periodic sync jobs and their bookkeeping.

JOBS:
  fetch_planning:  pull raw feeds, normalize, merge, persist
  sync_calendar:   push the future window to the external calendar
  notify_changes:  diff against the previous snapshot and notify

Every job brackets its work between StartRun and CompleteRun on the
store, so the audit log always reflects what happened. Per-job failures
never terminate the process; the next scheduled tick retries.

Within one job execution the pipeline ordering is strict:
fetch -> normalize -> merge -> persist -> detect -> notify/sync. There
is no ordering guarantee between job types beyond their intervals.
*/
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/planning-sync/detect"
	"github.com/warp/planning-sync/notify"
	"github.com/warp/planning-sync/planning"
	"github.com/warp/planning-sync/store/sqlite"
)

// Job type identifiers used in the run log.
const (
	JobFetch    = "fetch_planning"
	JobCalendar = "sync_calendar"
	JobNotify   = "notify_changes"
)

// Retention windows.
const (
	eventRetentionDays  = 730
	changeRetentionDays = 30
	fetchLookbackDays   = 365
)

// Fetcher pulls one kind's raw payload from the remote source.
type Fetcher interface {
	FetchRaw(ctx context.Context, kind planning.Kind, start, end time.Time) ([]byte, error)
}

// FeedParser decodes a raw payload into raw records.
type FeedParser func(payload []byte) ([]planning.Record, error)

// Pusher writes canonical events to the external calendar.
type Pusher interface {
	ClearRange(ctx context.Context, start, end time.Time) error
	Upsert(ctx context.Context, ev *planning.Event) error
}

// Runner owns the three jobs and their collaborators.
type Runner struct {
	Store      *sqlite.Store
	Fetcher    Fetcher
	Parse      FeedParser
	Pusher     Pusher
	Detector   *detect.Detector
	Dispatcher *notify.Dispatcher

	HorizonDays   int
	NotifyEnabled bool

	Status *Status

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// complete finishes the run row and publishes the result to the owned
// status record.
func (r *Runner) complete(ctx context.Context, runID int64, jobType, status string, count int, jobErr error) {
	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}
	if err := r.Store.CompleteRun(ctx, runID, status, count, errMsg); err != nil {
		log.Printf("[Jobs] Failed to complete run %d: %v", runID, err)
	}
	if r.Status != nil {
		r.Status.set(JobResult{
			JobType:     jobType,
			Status:      status,
			EventsCount: count,
			Error:       errMsg,
			CompletedAt: time.Now(),
		})
	}
}

// RunFetch pulls the three raw feeds, reconciles them into the
// canonical event set, and persists it.
func (r *Runner) RunFetch(ctx context.Context) error {
	runID, err := r.Store.StartRun(ctx, JobFetch)
	if err != nil {
		return err
	}

	now := r.now()
	start := now.AddDate(0, 0, -fetchLookbackDays)
	end := now.AddDate(0, 0, r.HorizonDays)
	log.Printf("[Fetch] Fetching data from %s to %s",
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	kinds := []planning.Kind{planning.KindWorkSchedule, planning.KindAbsence, planning.KindActivity}
	batches := make(map[planning.Kind][]planning.Event, len(kinds))
	for _, kind := range kinds {
		payload, err := r.Fetcher.FetchRaw(ctx, kind, start, end)
		if err != nil {
			err = fmt.Errorf("fetching %s feed: %w", kind, err)
			r.complete(ctx, runID, JobFetch, sqlite.RunFailed, 0, err)
			return err
		}
		records, err := r.Parse(payload)
		if err != nil {
			err = fmt.Errorf("parsing %s feed: %w", kind, err)
			r.complete(ctx, runID, JobFetch, sqlite.RunFailed, 0, err)
			return err
		}
		batches[kind] = planning.NormalizeAll(records, kind)
		log.Printf("[Fetch] Parsed %d %s events", len(batches[kind]), kind)
	}

	merged := planning.Merge(
		batches[planning.KindWorkSchedule],
		batches[planning.KindAbsence],
		batches[planning.KindActivity])

	saved, err := r.Store.UpsertEvents(ctx, merged)
	if err != nil {
		r.complete(ctx, runID, JobFetch, sqlite.RunFailed, 0, err)
		return err
	}
	log.Printf("[Fetch] Saved %d events", saved)

	r.Store.SetSetting(ctx, "last_fetch_time", now.Format(time.RFC3339))
	r.Store.SetSetting(ctx, "last_fetch_count", fmt.Sprintf("%d", len(merged)))

	if deleted, err := r.Store.DeleteEventsBefore(ctx, now.AddDate(0, 0, -eventRetentionDays)); err == nil && deleted > 0 {
		log.Printf("[Fetch] Cleaned up %d old events", deleted)
	}

	r.complete(ctx, runID, JobFetch, sqlite.RunSuccess, saved, nil)
	return nil
}

// RunCalendar pushes the future event window to the external calendar.
func (r *Runner) RunCalendar(ctx context.Context) error {
	runID, err := r.Store.StartRun(ctx, JobCalendar)
	if err != nil {
		return err
	}

	now := r.now()
	end := now.AddDate(0, 0, r.HorizonDays)
	events, err := r.Store.QueryEvents(ctx, &now, &end)
	if err != nil {
		r.complete(ctx, runID, JobCalendar, sqlite.RunFailed, 0, err)
		return err
	}
	if len(events) == 0 {
		log.Printf("[Calendar] No events to sync")
		r.complete(ctx, runID, JobCalendar, sqlite.RunSuccess, 0, nil)
		return nil
	}

	rangeStart, rangeEnd := eventRange(events)
	if err := r.Pusher.ClearRange(ctx, rangeStart, rangeEnd); err != nil {
		r.complete(ctx, runID, JobCalendar, sqlite.RunFailed, 0, err)
		return err
	}

	pushed := 0
	for i := range events {
		if err := r.Pusher.Upsert(ctx, &events[i]); err != nil {
			r.complete(ctx, runID, JobCalendar, sqlite.RunFailed, pushed, err)
			return err
		}
		pushed++
	}

	r.Store.SetSetting(ctx, "last_calendar_sync", now.Format(time.RFC3339))
	log.Printf("[Calendar] Synced %d events", pushed)
	r.complete(ctx, runID, JobCalendar, sqlite.RunSuccess, pushed, nil)
	return nil
}

// RunNotify diffs the future window against the previous snapshot and
// dispatches notifications for real changes.
func (r *Runner) RunNotify(ctx context.Context) error {
	runID, err := r.Store.StartRun(ctx, JobNotify)
	if err != nil {
		return err
	}

	if !r.NotifyEnabled {
		log.Printf("[NotifyJob] Notifications disabled")
		r.complete(ctx, runID, JobNotify, sqlite.RunSkipped, 0, nil)
		return nil
	}

	now := r.now()
	end := now.AddDate(0, 0, r.HorizonDays)
	events, err := r.Store.QueryEvents(ctx, &now, &end)
	if err != nil {
		r.complete(ctx, runID, JobNotify, sqlite.RunFailed, 0, err)
		return err
	}

	hasBaseline, err := r.Detector.HasBaseline(ctx)
	if err != nil {
		r.complete(ctx, runID, JobNotify, sqlite.RunFailed, 0, err)
		return err
	}

	changes, err := r.Detector.Detect(ctx, events, r.HorizonDays, !hasBaseline)
	if err != nil {
		r.complete(ctx, runID, JobNotify, sqlite.RunFailed, 0, err)
		return err
	}

	delivered, err := r.Dispatcher.Dispatch(ctx, changes)
	if err != nil {
		r.complete(ctx, runID, JobNotify, sqlite.RunFailed, delivered, err)
		return err
	}

	if purged, err := r.Store.PurgeNotifiedOlderThan(ctx, changeRetentionDays); err == nil && purged > 0 {
		log.Printf("[NotifyJob] Purged %d old change records", purged)
	}

	r.complete(ctx, runID, JobNotify, sqlite.RunSuccess, delivered, nil)
	return nil
}

// eventRange returns the [min start, max end] envelope of the events;
// events without a start time are ignored.
func eventRange(events []planning.Event) (time.Time, time.Time) {
	var start, end time.Time
	for i := range events {
		ev := &events[i]
		if ev.Start == nil {
			continue
		}
		if start.IsZero() || ev.Start.Before(start) {
			start = *ev.Start
		}
		last := *ev.Start
		if ev.End != nil && ev.End.After(last) {
			last = *ev.End
		}
		if end.IsZero() || last.After(end) {
			end = last
		}
	}
	return start, end
}
