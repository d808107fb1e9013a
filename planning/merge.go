/*
merge.go - Priority merge of the three per-kind event collections

ALGORITHM:
  1. Collect the calendar days covered by absences.
  2. Drop every schedule event starting on one of those days: a day
     marked absent must never also show scheduled work. This is the
     conflict-resolution policy, not a bug.
  3. Concatenate absences ++ activities ++ remaining schedule.
  4. Sort ascending by start time; events without a start time sort
     last, keeping their relative order (stable sort).

The function is pure: no hidden state, no side effects. It is called
from both the fetch job and the dashboard read path.
*/
package planning

import (
	"log"
	"sort"
	"time"
)

// Merge combines schedule, absence, and activity events into one
// ordered set, applying absence-over-schedule day exclusion.
func Merge(schedule, absences, activities []Event) []Event {
	absenceDays := make(map[time.Time]bool, len(absences))
	for i := range absences {
		if d, ok := absences[i].StartDate(); ok {
			absenceDays[d] = true
		}
	}

	filtered := make([]Event, 0, len(schedule))
	removed := 0
	for _, ev := range schedule {
		if d, ok := ev.StartDate(); ok && absenceDays[d] {
			removed++
			continue
		}
		filtered = append(filtered, ev)
	}
	if removed > 0 {
		log.Printf("[Merge] Removed %d schedule events due to absences", removed)
	}

	merged := make([]Event, 0, len(absences)+len(activities)+len(filtered))
	merged = append(merged, absences...)
	merged = append(merged, activities...)
	merged = append(merged, filtered...)

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].Start, merged[j].Start
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	return merged
}
