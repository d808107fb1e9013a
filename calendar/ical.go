package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/warp/planning-sync/planning"
)

// Category marker stamped on every event this system creates, so the
// clear-range sweep never touches events owned by anything else.
const SyncMarker = "PLANNING-SYNC"

// EventUID returns the deterministic calendar UID for an event.
// Repeated pushes of an unchanged event reuse the same UID, which is
// what makes the remote upsert idempotent.
func EventUID(ev *planning.Event) string {
	discriminator := ev.Code
	if discriminator == "" {
		discriminator = ev.PlanningCode
	}
	if discriminator == "" {
		discriminator = ev.Label
	}
	day := "nodate"
	if ev.Start != nil {
		day = ev.Start.Format("20060102")
	}
	return fmt.Sprintf("planning-%s-%s-%s", discriminator, day, SyncMarker)
}

// BuildICS renders one event as a VCALENDAR payload.
func BuildICS(ev *planning.Event) string {
	cal := ics.NewCalendar()
	cal.SetProductId("-//Planning Sync//EN")
	cal.SetMethod(ics.MethodPublish)

	vevent := cal.AddEvent(EventUID(ev))
	vevent.SetDtStampTime(time.Now().UTC())
	vevent.SetSummary(ev.DisplayTitle())
	vevent.SetDescription(ev.DisplayDescription())

	start := time.Now()
	if ev.Start != nil {
		start = *ev.Start
	}
	end := start
	if ev.End != nil {
		end = *ev.End
	}

	if ev.AllDay {
		vevent.SetAllDayStartAt(start)
		vevent.SetAllDayEndAt(end)
	} else {
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
	}

	categories := []string{SyncMarker, ev.Kind.String()}
	if ev.Code != "" {
		categories = append(categories, ev.Code)
	}
	vevent.SetProperty(ics.ComponentPropertyCategories, strings.Join(categories, ","))

	return cal.Serialize()
}
