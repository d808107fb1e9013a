package calendar_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/planning-sync/calendar"
	"github.com/warp/planning-sync/planning"
)

// =============================================================================
// UID TESTS
// =============================================================================

func TestEventUID_DeterministicAndMarked(t *testing.T) {
	start := time.Date(2025, time.November, 3, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		ev   planning.Event
		want string
	}{
		{
			name: "absence uses code",
			ev:   planning.Event{Kind: planning.KindAbsence, Start: &start, Code: "CP"},
			want: "planning-CP-20251103-PLANNING-SYNC",
		},
		{
			name: "schedule falls back to planning code",
			ev:   planning.Event{Kind: planning.KindWorkSchedule, Start: &start, PlanningCode: "M1"},
			want: "planning-M1-20251103-PLANNING-SYNC",
		},
		{
			name: "activity falls back to label",
			ev:   planning.Event{Kind: planning.KindActivity, Start: &start, Label: "Formation"},
			want: "planning-Formation-20251103-PLANNING-SYNC",
		},
		{
			name: "missing start",
			ev:   planning.Event{Kind: planning.KindAbsence, Code: "CP"},
			want: "planning-CP-nodate-PLANNING-SYNC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calendar.EventUID(&tt.ev))
			// Pushing twice must target the same resource.
			assert.Equal(t, calendar.EventUID(&tt.ev), calendar.EventUID(&tt.ev))
		})
	}
}

// =============================================================================
// ICS RENDERING TESTS
// =============================================================================

func TestBuildICS_TimedEvent(t *testing.T) {
	start := time.Date(2025, time.November, 3, 8, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.November, 3, 17, 0, 0, 0, time.UTC)
	ev := planning.Event{
		Kind:         planning.KindWorkSchedule,
		Start:        &start,
		End:          &end,
		PlanningCode: "M1",
		Label:        "Service",
	}

	payload := calendar.BuildICS(&ev)

	assert.Contains(t, payload, "BEGIN:VCALENDAR")
	assert.Contains(t, payload, "UID:planning-M1-20251103-PLANNING-SYNC")
	assert.Contains(t, payload, "SUMMARY:Work: M1")
	assert.Contains(t, payload, "DTSTART:20251103T080000Z")
	assert.Contains(t, payload, "DTEND:20251103T170000Z")
	assert.Contains(t, payload, "CATEGORIES:PLANNING-SYNC,HORAIRE")
}

func TestBuildICS_AllDayEvent(t *testing.T) {
	start := time.Date(2025, time.November, 3, 0, 0, 0, 0, time.Local)
	ev := planning.Event{
		Kind:   planning.KindAbsence,
		Start:  &start,
		AllDay: true,
		Code:   "CP",
		Label:  "Congé payé",
	}

	payload := calendar.BuildICS(&ev)

	assert.Contains(t, payload, "DTSTART;VALUE=DATE:20251103")
	assert.Contains(t, payload, "CATEGORIES:PLANNING-SYNC,ABSENCE,CP")
	// The marker is what ClearRange keys on.
	assert.True(t, strings.Contains(payload, calendar.SyncMarker))
}
