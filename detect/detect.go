/*
Package detect implements snapshot-based change detection between
consecutive sync runs.

PURPOSE:
  Compares the freshly merged event set against the previous run's
  persisted snapshot and classifies differences into new, deleted, and
  modified. The snapshot baseline always advances, even when the caller
  does not act on the result.

BOUNDARY SUPPRESSION:
  An event whose start date equals exactly today + horizonDays only
  appears (or vanishes) because the sync window slid by one day on the
  daily tick. Such events are excluded from the reported changes but
  still persisted in the new snapshot, so they never trigger a
  notification and never flap.

COLD START:
  On the first-ever run there is no baseline to diff against. The caller
  passes coldStart=true (obtained via HasBaseline); the detector then
  seeds the baseline silently instead of reporting every event as new.
*/
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/warp/planning-sync/planning"
)

const timeLayout = "2006-01-02T15:04:05"

// Projection is the comparison-relevant view of one event. Two runs
// produce equal projections iff the event is unchanged for
// change-detection purposes. Field differences outside this set (symbol,
// abbreviation, ...) are deliberately ignored.
type Projection struct {
	UID         string `json:"uid"`
	Title       string `json:"title"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Description string `json:"description"`
	AllDay      bool   `json:"all_day"`
	Code        string `json:"code"`
}

// ToEvent rebuilds a minimal event from a projection, enough for time
// rendering in notifications about deleted or modified events.
func (p Projection) ToEvent() (planning.Event, error) {
	ev := planning.Event{
		Title:  p.Title,
		AllDay: p.AllDay,
		Code:   p.Code,
	}
	if p.Start != "" {
		start, err := time.ParseInLocation(timeLayout, p.Start, time.Local)
		if err != nil {
			return ev, fmt.Errorf("%w: projection start %q: %v", planning.ErrParse, p.Start, err)
		}
		ev.Start = &start
	}
	if p.End != "" {
		end, err := time.ParseInLocation(timeLayout, p.End, time.Local)
		if err != nil {
			return ev, fmt.Errorf("%w: projection end %q: %v", planning.ErrParse, p.End, err)
		}
		ev.End = &end
	}
	return ev, nil
}

// Snapshot maps unique IDs to their projections for one run.
type Snapshot map[string]Projection

// ModifiedPair holds the before/after projections of a modified event.
type ModifiedPair struct {
	Old Projection
	New Projection
}

// Changes is the three-way partition of the diff between two snapshots.
type Changes struct {
	New      []planning.Event
	Deleted  []Projection
	Modified []ModifiedPair
}

// Empty reports whether the diff found nothing to notify about.
func (c Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Deleted) == 0 && len(c.Modified) == 0
}

// StateStore persists the snapshot between runs. Implemented by the
// SQLite store's settings table.
type StateStore interface {
	LoadSnapshotState(ctx context.Context) ([]byte, error)
	SaveSnapshotState(ctx context.Context, state []byte) error
}

// Detector diffs merged event sets across runs.
type Detector struct {
	State StateStore

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// New creates a detector backed by the given state store.
func New(state StateStore) *Detector {
	return &Detector{State: state, Now: time.Now}
}

// Project builds the comparison projection of one event.
func Project(ev *planning.Event) Projection {
	p := Projection{
		UID:         ev.UniqueID(),
		Title:       ev.DisplayTitle(),
		Description: ev.DisplayDescription(),
		AllDay:      ev.AllDay,
		Code:        ev.Code,
	}
	if ev.Start != nil {
		p.Start = ev.Start.Format(timeLayout)
	}
	if ev.End != nil {
		p.End = ev.End.Format(timeLayout)
	}
	return p
}

// HasBaseline reports whether a previous snapshot exists. Callers use
// this to decide the coldStart flag for Detect.
func (d *Detector) HasBaseline(ctx context.Context) (bool, error) {
	state, err := d.State.LoadSnapshotState(ctx)
	if err != nil {
		return false, err
	}
	return state != nil, nil
}

// Detect diffs the current events against the persisted snapshot and
// replaces the snapshot with the current one. The load/compute/replace
// sequence is atomic from the caller's perspective: the snapshot is a
// single row, and a crash before the final save costs at most one
// duplicate-notification cycle, never a mixed baseline.
func (d *Detector) Detect(ctx context.Context, current []planning.Event, horizonDays int, coldStart bool) (Changes, error) {
	currentSnap := make(Snapshot, len(current))
	eventByUID := make(map[string]*planning.Event, len(current))
	for i := range current {
		p := Project(&current[i])
		currentSnap[p.UID] = p
		eventByUID[p.UID] = &current[i]
	}

	if coldStart {
		log.Printf("[Detect] Cold start: seeding baseline with %d events", len(currentSnap))
		return Changes{}, d.saveSnapshot(ctx, currentSnap)
	}

	previous, err := d.loadSnapshot(ctx)
	if err != nil {
		return Changes{}, err
	}

	now := d.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	horizonDate := today.AddDate(0, 0, horizonDays)

	atBoundary := func(p Projection) bool {
		if p.Start == "" {
			return false
		}
		start, err := time.ParseInLocation(timeLayout, p.Start, now.Location())
		if err != nil {
			return false
		}
		return start.Year() == horizonDate.Year() && start.YearDay() == horizonDate.YearDay()
	}

	currentIDs := lo.Keys(currentSnap)
	previousIDs := lo.Keys(previous)
	sort.Strings(currentIDs)
	sort.Strings(previousIDs)

	newIDs := lo.Filter(currentIDs, func(uid string, _ int) bool {
		_, seen := previous[uid]
		return !seen
	})
	deletedIDs := lo.Filter(previousIDs, func(uid string, _ int) bool {
		_, still := currentSnap[uid]
		return !still
	})
	commonIDs := lo.Filter(currentIDs, func(uid string, _ int) bool {
		_, seen := previous[uid]
		return seen
	})

	var changes Changes
	for _, uid := range newIDs {
		if atBoundary(currentSnap[uid]) {
			continue
		}
		changes.New = append(changes.New, *eventByUID[uid])
	}
	for _, uid := range deletedIDs {
		if atBoundary(previous[uid]) {
			continue
		}
		changes.Deleted = append(changes.Deleted, previous[uid])
	}
	for _, uid := range commonIDs {
		old, cur := previous[uid], currentSnap[uid]
		if old.Title == cur.Title && old.Start == cur.Start &&
			old.End == cur.End && old.Description == cur.Description {
			continue
		}
		if atBoundary(cur) {
			continue
		}
		changes.Modified = append(changes.Modified, ModifiedPair{Old: old, New: cur})
	}

	// The baseline advances unconditionally.
	if err := d.saveSnapshot(ctx, currentSnap); err != nil {
		return Changes{}, err
	}

	if !changes.Empty() {
		log.Printf("[Detect] Changes detected: %d new, %d deleted, %d modified",
			len(changes.New), len(changes.Deleted), len(changes.Modified))
	}
	return changes, nil
}

// ImportLegacyState seeds the baseline from a legacy JSON state file
// when no durable snapshot exists yet. The file is migration input
// only; it is never written back.
func (d *Detector) ImportLegacyState(ctx context.Context, path string) error {
	exists, err := d.HasBaseline(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading legacy state %s: %w", path, err)
	}

	var projections []Projection
	if err := json.Unmarshal(data, &projections); err != nil {
		return fmt.Errorf("%w: decoding legacy state %s: %v", planning.ErrParse, path, err)
	}

	snap := make(Snapshot, len(projections))
	for _, p := range projections {
		snap[p.UID] = p
	}
	log.Printf("[Detect] Imported legacy baseline with %d events from %s", len(snap), path)
	return d.saveSnapshot(ctx, snap)
}

// Snapshots are persisted as a sorted array of projections; sorting
// keeps the serialized form deterministic for a given event set.
func (d *Detector) saveSnapshot(ctx context.Context, snap Snapshot) error {
	projections := lo.Values(snap)
	sort.Slice(projections, func(i, j int) bool { return projections[i].UID < projections[j].UID })

	data, err := json.Marshal(projections)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return d.State.SaveSnapshotState(ctx, data)
}

func (d *Detector) loadSnapshot(ctx context.Context) (Snapshot, error) {
	data, err := d.State.LoadSnapshotState(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return Snapshot{}, nil
	}

	var projections []Projection
	if err := json.Unmarshal(data, &projections); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %v", planning.ErrParse, err)
	}

	snap := make(Snapshot, len(projections))
	for _, p := range projections {
		snap[p.UID] = p
	}
	return snap, nil
}
