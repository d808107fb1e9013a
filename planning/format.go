/*
format.go - Derived display fields and localized time rendering

DISPLAY FIELDS:
  DisplayTitle and DisplayDescription are computed from the event kind
  and its descriptive fields; they are never stored redundantly.

LOCALIZATION:
  Day and month names come from static French lookup tables keyed by
  weekday/month index. Host locale configuration is deliberately not
  consulted so that rendered output is reproducible across machines.
*/
package planning

import (
	"fmt"
	"strings"
)

var frenchDays = [7]string{
	"Dimanche", "Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi",
}

var frenchMonths = [12]string{
	"Jan", "Fév", "Mars", "Avr", "Mai", "Juin",
	"Juil", "Août", "Sep", "Oct", "Nov", "Déc",
}

// DisplayTitle returns the calendar-facing title for the event.
func (e *Event) DisplayTitle() string {
	switch e.Kind {
	case KindWorkSchedule:
		return fmt.Sprintf("Work: %s", e.PlanningCode)
	case KindAbsence:
		return fmt.Sprintf("%s: %s", e.Code, e.Label)
	case KindActivity:
		return fmt.Sprintf("Activity: %s", e.Label)
	default:
		return e.Title
	}
}

// DisplayDescription returns the calendar-facing description: label,
// planning time, duration, then the un-escaped raw description.
func (e *Event) DisplayDescription() string {
	var parts []string
	if e.Label != "" {
		parts = append(parts, e.Label)
	}
	if e.PlanningCode != "" {
		parts = append(parts, fmt.Sprintf("Time: %s", e.PlanningCode))
	}
	if e.DurationText != "" {
		parts = append(parts, fmt.Sprintf("Duration: %s", e.DurationText))
	}
	if e.RawDescription != "" {
		parts = append(parts, UnescapeDescription(e.RawDescription))
	}
	return strings.Join(parts, "\n")
}

// UnescapeDescription reverses the HTML escaping the source applies to
// free-text descriptions.
func UnescapeDescription(s string) string {
	r := strings.NewReplacer("<br>", "\n", "&gt;", ">", "&lt;", "<")
	return r.Replace(s)
}

// FormatEventTime renders the event's time for notifications, e.g.
// "Lundi 04 Nov" for all-day events and "Lundi 04 Nov 08:00-17:00" for
// timed ones. Events without a start time render as "Date inconnue".
func (e *Event) FormatEventTime() string {
	if e.Start == nil {
		return "Date inconnue"
	}
	day := frenchDays[int(e.Start.Weekday())]
	month := frenchMonths[int(e.Start.Month())-1]

	if e.AllDay || e.End == nil {
		return fmt.Sprintf("%s %02d %s", day, e.Start.Day(), month)
	}
	return fmt.Sprintf("%s %02d %s %s-%s",
		day, e.Start.Day(), month,
		e.Start.Format("15:04"), e.End.Format("15:04"))
}
