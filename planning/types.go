/*
types.go - Canonical event model

PURPOSE:
  Defines the single Event entity that every pipeline stage operates on.
  Raw source records (loose field maps) are converted exactly once at the
  normalizer boundary; nothing downstream ever sees the raw form again.

EVENT IDENTITY:
  UniqueID() is the idempotency and diffing key. It combines the event
  kind, the start time, and a kind-specific discriminator (planning code
  for work schedule, absence code for absences, label for activities).
  An event whose start time moves therefore gets a NEW identity: storage
  and change detection treat it as delete-of-old plus create-of-new.

SEE ALSO:
  - normalize.go: raw record -> Event conversion
  - merge.go: combining the three per-kind collections
  - format.go: derived display fields
*/
package planning

import (
	"fmt"
	"time"
)

// Kind identifies which source feed an event came from.
type Kind int

const (
	KindWorkSchedule Kind = iota
	KindAbsence
	KindActivity
)

// String returns the stable identifier used in unique IDs and storage.
func (k Kind) String() string {
	switch k {
	case KindWorkSchedule:
		return "HORAIRE"
	case KindAbsence:
		return "ABSENCE"
	case KindActivity:
		return "ACTIVITY"
	default:
		return "UNKNOWN"
	}
}

// ParseKind maps a stored kind identifier back to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "HORAIRE":
		return KindWorkSchedule, nil
	case "ABSENCE":
		return KindAbsence, nil
	case "ACTIVITY":
		return KindActivity, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// Record is one raw entry from the source feed: a flat field-name -> value
// mapping. It only exists between the feed parser and the normalizer.
type Record map[string]string

// Event is the canonical, post-normalization representation.
type Event struct {
	Kind  Kind
	Title string // raw title from the source; DisplayTitle is usually preferred

	Start  *time.Time
	End    *time.Time
	AllDay bool

	Code         string // absence/activity code (p_cod)
	Label        string // human label (p_lib)
	PlanningCode string // shift/planning code (p_plg)
	DurationText string // duration as reported by the source (p_tpm)
	Symbol       string // p_sym
	Abbreviation string // p_abr

	// RawDescription is HTML-escaped free text from the source. Consumers
	// must go through DisplayDescription, which un-escapes it.
	RawDescription string
}

// UniqueID returns the deterministic identity key for this event.
// Stable across runs iff kind, start time, and the kind discriminator
// are unchanged.
func (e *Event) UniqueID() string {
	start := "no-date"
	if e.Start != nil {
		start = e.Start.Format("2006-01-02T15:04:05")
	}
	switch e.Kind {
	case KindWorkSchedule:
		return fmt.Sprintf("HORAIRE-%s-%s", start, e.PlanningCode)
	case KindAbsence:
		return fmt.Sprintf("ABSENCE-%s-%s", start, e.Code)
	case KindActivity:
		return fmt.Sprintf("ACTIVITY-%s-%s", start, e.Label)
	default:
		return fmt.Sprintf("%s-%s-%s", e.Kind, start, e.Title)
	}
}

// StartDate returns the event's start truncated to its calendar day.
// ok is false when the event has no start time.
func (e *Event) StartDate() (d time.Time, ok bool) {
	if e.Start == nil {
		return time.Time{}, false
	}
	t := *e.Start
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), true
}

// DurationHours returns the event length in hours, zero when either
// endpoint is missing.
func (e *Event) DurationHours() float64 {
	if e.Start == nil || e.End == nil {
		return 0
	}
	return e.End.Sub(*e.Start).Hours()
}
