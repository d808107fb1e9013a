package planning

import "time"

// Raw feed field names. The source emits one eventRow per event with
// these child elements.
const (
	fieldID           = "p_id"
	fieldTitle        = "p_title"
	fieldAllDay       = "p_allday"
	fieldStart        = "p_start"
	fieldEnd          = "p_end"
	fieldDescription  = "p_desc"
	fieldCode         = "p_cod"
	fieldLabel        = "p_lib"
	fieldPlanning     = "p_plg"
	fieldDuration     = "p_tpm"
	fieldSymbol       = "p_sym"
	fieldAbbreviation = "p_abr"
)

// Date formats the source is known to emit, tried in order: full
// timestamp first, date-only second.
var sourceTimeFormats = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalize converts one raw record into exactly one canonical Event.
// It never fails: an unparseable date leaves the corresponding field
// nil, and missing fields degrade to empty strings. Callers filtering
// on Start must handle nil explicitly.
func Normalize(rec Record, kind Kind) Event {
	allDay := rec[fieldAllDay]
	return Event{
		Kind:           kind,
		Title:          rec[fieldTitle],
		AllDay:         allDay == "" || allDay == "true", // source default is all-day
		Start:          parseSourceTime(rec[fieldStart]),
		End:            parseSourceTime(rec[fieldEnd]),
		RawDescription: rec[fieldDescription],
		Code:           rec[fieldCode],
		Label:          rec[fieldLabel],
		PlanningCode:   rec[fieldPlanning],
		DurationText:   rec[fieldDuration],
		Symbol:         rec[fieldSymbol],
		Abbreviation:   rec[fieldAbbreviation],
	}
}

// NormalizeAll converts a batch of raw records. A malformed record
// degrades to a partially-populated Event; the batch is never dropped.
func NormalizeAll(recs []Record, kind Kind) []Event {
	events := make([]Event, 0, len(recs))
	for _, rec := range recs {
		events = append(events, Normalize(rec, kind))
	}
	return events
}

func parseSourceTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range sourceTimeFormats {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}
