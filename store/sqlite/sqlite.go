/*
Package sqlite provides the SQLite-backed persistent store for the sync
pipeline.

PURPOSE:
  Durable, crash-consistent storage for canonical events, job runs,
  settings, and the change-notification log. This store is the single
  source of truth consulted by the dashboard and the change detector.

KEY TABLES:
  events:        Canonical events, unique on (unique_id, start_time)
  job_runs:      Append-only audit log, one row per job execution
  settings:      Last-write-wins key/value store
  event_changes: Change log with notified flag, append-only

IDEMPOTENT UPSERT:
  Events are keyed by (unique_id, start_time). The update path refreshes
  end time, duration, code, label, title, and updated_at but leaves
  created_at untouched. Because the key embeds the start time, an event
  whose start shifts is stored as a new row, mirroring the unique-ID
  semantics of the event model.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around the database handle. Jobs
  normally run one at a time, but every mutating operation is wrapped in
  a single-writer critical section so overlapping job types stay safe.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/planning.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/planning-sync/planning"
)

// Job run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
	RunSkipped = "skipped"
)

// Change types recorded in the change log.
const (
	ChangeNew      = "new"
	ChangeDeleted  = "deleted"
	ChangeModified = "modified"
)

// Times are stored as local naive timestamps, fixed-width so that
// lexicographic comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05"

// Store implements all persistence for the sync pipeline using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", planning.ErrStore, err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrating database: %v", planning.ErrStore, err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Canonical events
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		unique_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		all_day INTEGER DEFAULT 0,
		duration_hours REAL DEFAULT 0,
		code TEXT,
		label TEXT,
		planning_code TEXT,
		duration_text TEXT,
		symbol TEXT,
		abbreviation TEXT,
		description TEXT,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(unique_id, start_time)
	);

	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);
	CREATE INDEX IF NOT EXISTS idx_events_unique_id ON events(unique_id);

	-- Job runs (append-only audit log)
	CREATE TABLE IF NOT EXISTS job_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		events_count INTEGER DEFAULT 0,
		error_message TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		duration_seconds REAL
	);

	CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job_type, started_at);

	-- Settings (last-write-wins key/value)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Change log for notifications
	CREATE TABLE IF NOT EXISTS event_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_type TEXT NOT NULL,
		unique_id TEXT NOT NULL,
		event_title TEXT,
		old_time TEXT,
		new_time TEXT,
		detected_at TEXT NOT NULL,
		notified INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_changes_notified ON event_changes(notified, detected_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT OPERATIONS
// =============================================================================

// UpsertEvents inserts or updates events keyed by (unique_id, start_time).
// A single-event failure is logged and skipped; the call returns the
// number of rows actually written and only fails for structural errors.
// Events without a start time are such a per-record failure: start_time
// is part of the unique key and NULLs are mutually distinct in SQLite
// unique constraints, so persisting them would duplicate on every run.
func (s *Store) UpsertEvents(ctx context.Context, events []planning.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO events (
			kind, unique_id, start_time, end_time, all_day, duration_hours,
			code, label, planning_code, duration_text, symbol, abbreviation,
			description, title, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_id, start_time) DO UPDATE SET
			end_time = excluded.end_time,
			duration_hours = excluded.duration_hours,
			code = excluded.code,
			label = excluded.label,
			title = excluded.title,
			updated_at = excluded.updated_at
	`

	now := time.Now().Format(timeLayout)
	count := 0
	for i := range events {
		ev := &events[i]
		if ev.Start == nil {
			log.Printf("[Store] Skipping event without start time: %s", ev.UniqueID())
			continue
		}
		_, err := s.db.ExecContext(ctx, query,
			ev.Kind.String(),
			ev.UniqueID(),
			ev.Start.Format(timeLayout),
			nullTime(ev.End),
			ev.AllDay,
			ev.DurationHours(),
			ev.Code,
			ev.Label,
			ev.PlanningCode,
			ev.DurationText,
			ev.Symbol,
			ev.Abbreviation,
			ev.RawDescription,
			ev.DisplayTitle(),
			now,
			now,
		)
		if err != nil {
			log.Printf("[Store] Failed to save event %s: %v", ev.UniqueID(), err)
			continue
		}
		count++
	}

	return count, nil
}

// QueryEvents returns events whose start time falls inside the
// inclusive [start, end] range, ascending by start time. Nil bounds
// mean unbounded.
func (s *Store) QueryEvents(ctx context.Context, start, end *time.Time) ([]planning.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT kind, start_time, end_time, all_day, code, label,
		       planning_code, duration_text, symbol, abbreviation, description, title
		FROM events WHERE 1=1
	`
	var args []any
	if start != nil {
		query += " AND start_time >= ?"
		args = append(args, start.Format(timeLayout))
	}
	if end != nil {
		query += " AND start_time <= ?"
		args = append(args, end.Format(timeLayout))
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying events: %v", planning.ErrStore, err)
	}
	defer rows.Close()

	var events []planning.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events in the inclusive range.
func (s *Store) CountEvents(ctx context.Context, start, end *time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT COUNT(*) FROM events WHERE 1=1"
	var args []any
	if start != nil {
		query += " AND start_time >= ?"
		args = append(args, start.Format(timeLayout))
	}
	if end != nil {
		query += " AND start_time <= ?"
		args = append(args, end.Format(timeLayout))
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// DeleteEventsBefore removes events starting before the cutoff
// (retention sweep). Returns the number of rows deleted.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE start_time < ?", cutoff.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: deleting old events: %v", planning.ErrStore, err)
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

func scanEvent(rows *sql.Rows) (planning.Event, error) {
	var (
		ev       planning.Event
		kindStr  string
		startStr sql.NullString
		endStr   sql.NullString
		code     sql.NullString
		label    sql.NullString
		plgCode  sql.NullString
		duration sql.NullString
		symbol   sql.NullString
		abbrev   sql.NullString
		desc     sql.NullString
		title    string
	)

	err := rows.Scan(&kindStr, &startStr, &endStr, &ev.AllDay, &code, &label,
		&plgCode, &duration, &symbol, &abbrev, &desc, &title)
	if err != nil {
		return ev, fmt.Errorf("%w: scanning event: %v", planning.ErrStore, err)
	}

	kind, err := planning.ParseKind(kindStr)
	if err != nil {
		return ev, fmt.Errorf("%w: %v", planning.ErrStore, err)
	}

	ev.Kind = kind
	ev.Title = title
	ev.Start = parseNullTime(startStr)
	ev.End = parseNullTime(endStr)
	ev.Code = code.String
	ev.Label = label.String
	ev.PlanningCode = plgCode.String
	ev.DurationText = duration.String
	ev.Symbol = symbol.String
	ev.Abbreviation = abbrev.String
	ev.RawDescription = desc.String
	return ev, nil
}

// =============================================================================
// JOB RUN OPERATIONS
// =============================================================================

// JobRun is one row of the append-only job audit log.
type JobRun struct {
	ID              int64
	JobType         string
	Status          string
	EventsCount     int
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
}

// StartRun opens a job run in the audit log and returns its id.
func (s *Store) StartRun(ctx context.Context, jobType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO job_runs (job_type, status, started_at) VALUES (?, ?, ?)",
		jobType, RunRunning, time.Now().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: starting run: %v", planning.ErrStore, err)
	}
	return res.LastInsertId()
}

// CompleteRun closes a job run, computing its duration from started_at.
// A run left running forever (process crash) is surfaced by the audit
// log, never auto-repaired.
func (s *Store) CompleteRun(ctx context.Context, runID int64, status string, eventsCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startedStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT started_at FROM job_runs WHERE id = ?", runID).Scan(&startedStr)
	if err != nil {
		return fmt.Errorf("%w: completing run %d: %v", planning.ErrStore, runID, err)
	}

	completed := time.Now()
	duration := 0.0
	if started, perr := time.ParseInLocation(timeLayout, startedStr, time.Local); perr == nil {
		duration = completed.Sub(started).Seconds()
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = ?, events_count = ?, error_message = ?,
		    completed_at = ?, duration_seconds = ?
		WHERE id = ?`,
		status, eventsCount, nullString(errMsg),
		completed.Format(timeLayout), duration, runID)
	if err != nil {
		return fmt.Errorf("%w: completing run %d: %v", planning.ErrStore, runID, err)
	}
	return nil
}

// LastRun returns the most recent run for a job type, or nil.
func (s *Store) LastRun(ctx context.Context, jobType string) (*JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.queryRuns(ctx, `
		SELECT id, job_type, status, events_count, error_message,
		       started_at, completed_at, duration_seconds
		FROM job_runs WHERE job_type = ?
		ORDER BY started_at DESC, id DESC LIMIT 1`, jobType)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// RunHistory returns recent runs, optionally filtered by job type.
func (s *Store) RunHistory(ctx context.Context, jobType string, limit int) ([]JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if jobType != "" {
		return s.queryRuns(ctx, `
			SELECT id, job_type, status, events_count, error_message,
			       started_at, completed_at, duration_seconds
			FROM job_runs WHERE job_type = ?
			ORDER BY started_at DESC, id DESC LIMIT ?`, jobType, limit)
	}
	return s.queryRuns(ctx, `
		SELECT id, job_type, status, events_count, error_message,
		       started_at, completed_at, duration_seconds
		FROM job_runs
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]JobRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying runs: %v", planning.ErrStore, err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var (
			r            JobRun
			errMsg       sql.NullString
			startedStr   string
			completedStr sql.NullString
			duration     sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.JobType, &r.Status, &r.EventsCount,
			&errMsg, &startedStr, &completedStr, &duration); err != nil {
			return nil, fmt.Errorf("%w: scanning run: %v", planning.ErrStore, err)
		}
		r.ErrorMessage = errMsg.String
		r.StartedAt, _ = time.ParseInLocation(timeLayout, startedStr, time.Local)
		r.CompletedAt = parseNullTime(completedStr)
		r.DurationSeconds = duration.Float64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SETTINGS OPERATIONS
// =============================================================================

// SetSetting stores an opaque value under key, last write wins.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("%w: setting %q: %v", planning.ErrStore, key, err)
	}
	return nil
}

// GetSetting returns the value stored under key, or fallback when the
// key is absent.
func (s *Store) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: getting %q: %v", planning.ErrStore, key, err)
	}
	return value, nil
}

// =============================================================================
// CHANGE LOG OPERATIONS
// =============================================================================

// ChangeRecord is one row of the change-notification log.
type ChangeRecord struct {
	ID         int64
	ChangeType string
	UniqueID   string
	EventTitle string
	OldTime    string
	NewTime    string
	DetectedAt time.Time
	Notified   bool
}

// RecordChange appends a change to the notification log and returns its id.
func (s *Store) RecordChange(ctx context.Context, changeType, uniqueID, title, oldTime, newTime string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event_changes (change_type, unique_id, event_title, old_time, new_time, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		changeType, uniqueID, title, nullString(oldTime), nullString(newTime),
		time.Now().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: recording change: %v", planning.ErrStore, err)
	}
	return res.LastInsertId()
}

// UnnotifiedChanges returns changes that have not been delivered yet,
// oldest first.
func (s *Store) UnnotifiedChanges(ctx context.Context) ([]ChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, change_type, unique_id, event_title, old_time, new_time, detected_at, notified
		FROM event_changes
		WHERE notified = 0
		ORDER BY detected_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying changes: %v", planning.ErrStore, err)
	}
	defer rows.Close()

	var changes []ChangeRecord
	for rows.Next() {
		var (
			c           ChangeRecord
			oldT, newT  sql.NullString
			detectedStr string
		)
		if err := rows.Scan(&c.ID, &c.ChangeType, &c.UniqueID, &c.EventTitle,
			&oldT, &newT, &detectedStr, &c.Notified); err != nil {
			return nil, fmt.Errorf("%w: scanning change: %v", planning.ErrStore, err)
		}
		c.OldTime = oldT.String
		c.NewTime = newT.String
		c.DetectedAt, _ = time.ParseInLocation(timeLayout, detectedStr, time.Local)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// MarkNotified flags the given changes as delivered.
func (s *Store) MarkNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := "UPDATE event_changes SET notified = 1 WHERE id IN (?"
	args := []any{ids[0]}
	for _, id := range ids[1:] {
		query += ",?"
		args = append(args, id)
	}
	query += ")"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: marking changes notified: %v", planning.ErrStore, err)
	}
	return nil
}

// PurgeNotifiedOlderThan removes notified changes older than the
// retention window. Returns the number of rows deleted.
func (s *Store) PurgeNotifiedOlderThan(ctx context.Context, days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM event_changes WHERE notified = 1 AND detected_at < ?",
		cutoff.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: purging changes: %v", planning.ErrStore, err)
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

// =============================================================================
// SNAPSHOT STATE
// =============================================================================

// The change detector's previous-run snapshot lives in the settings
// table so the diff baseline is as durable as the events themselves.
// The single-row upsert makes the replace effectively atomic from the
// caller's perspective.
const snapshotKey = "change_snapshot"

// LoadSnapshotState returns the previously persisted snapshot bytes,
// or nil when no snapshot exists yet (first-ever run).
func (s *Store) LoadSnapshotState(ctx context.Context) ([]byte, error) {
	value, err := s.GetSetting(ctx, snapshotKey, "")
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	return []byte(value), nil
}

// SaveSnapshotState replaces the persisted snapshot.
func (s *Store) SaveSnapshotState(ctx context.Context, state []byte) error {
	return s.SetSetting(ctx, snapshotKey, string(state))
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(timeLayout), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.ParseInLocation(timeLayout, ns.String, time.Local)
	if err != nil {
		return nil
	}
	return &t
}
