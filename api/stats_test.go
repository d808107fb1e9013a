package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-sync/api"
	"github.com/warp/planning-sync/planning"
)

// =============================================================================
// MONTHLY STATS TESTS
// =============================================================================

func statsSchedule(start time.Time, hours int) planning.Event {
	end := start.Add(time.Duration(hours) * time.Hour)
	return planning.Event{Kind: planning.KindWorkSchedule, Start: &start, End: &end, PlanningCode: "M1"}
}

func statsAbsence(start, end time.Time) planning.Event {
	return planning.Event{Kind: planning.KindAbsence, Start: &start, End: &end, AllDay: true, Code: "CP"}
}

func TestMonthlyStats_SumsWorkHoursPerMonth(t *testing.T) {
	// GIVEN: Two shifts in November and one in December
	// WHEN: Aggregating
	// THEN: Each month carries its own hour total, oldest first

	nov3 := time.Date(2025, time.November, 3, 8, 0, 0, 0, time.Local)
	nov4 := time.Date(2025, time.November, 4, 8, 0, 0, 0, time.Local)
	dec1 := time.Date(2025, time.December, 1, 8, 0, 0, 0, time.Local)

	stats := api.MonthlyStats([]planning.Event{
		statsSchedule(nov3, 8), statsSchedule(nov4, 6), statsSchedule(dec1, 8),
	})

	require.Len(t, stats, 2)
	assert.Equal(t, 2025, stats[0].Year)
	assert.Equal(t, 11, stats[0].MonthNum)
	assert.InDelta(t, 14.0, stats[0].HoursWorked, 0.001)
	assert.Equal(t, 12, stats[1].MonthNum)
	assert.InDelta(t, 8.0, stats[1].HoursWorked, 0.001)
}

func TestMonthlyStats_AbsenceDaysLowerExpectation(t *testing.T) {
	// GIVEN: One worked shift and a two-day absence in the same month
	// WHEN: Aggregating
	// THEN: Expected hours drop by 2 * 5.6h from the 121.24h base

	nov3 := time.Date(2025, time.November, 3, 8, 0, 0, 0, time.Local)
	abs := statsAbsence(
		time.Date(2025, time.November, 5, 0, 0, 0, 0, time.Local),
		time.Date(2025, time.November, 6, 0, 0, 0, 0, time.Local))

	stats := api.MonthlyStats([]planning.Event{statsSchedule(nov3, 8), abs})

	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].AbsenceDays)
	assert.InDelta(t, 121.24-2*5.6, stats[0].ExpectedHours, 0.001)
	assert.Greater(t, stats[0].Percentage, 0.0)
}

func TestMonthlyStats_DuplicateAbsenceDaysCountOnce(t *testing.T) {
	// GIVEN: Two absence records covering the same day
	// WHEN: Aggregating
	// THEN: The day is counted once

	day := time.Date(2025, time.November, 5, 0, 0, 0, 0, time.Local)
	a := statsAbsence(day, day)
	b := statsAbsence(day, day)

	stats := api.MonthlyStats([]planning.Event{a, b})

	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].AbsenceDays)
}

func TestMonthlyStats_EventsWithoutStartIgnored(t *testing.T) {
	stats := api.MonthlyStats([]planning.Event{{Kind: planning.KindWorkSchedule}})
	assert.Empty(t, stats)
}

func TestMonthlyStats_ZeroExpected_ZeroPercentage(t *testing.T) {
	// GIVEN: Enough absence days to exhaust the monthly expectation
	// WHEN: Aggregating
	// THEN: Expected clamps at zero and the percentage stays zero

	var events []planning.Event
	start := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.Local)
	events = append(events, statsAbsence(start, start.AddDate(0, 0, 24)))

	stats := api.MonthlyStats(events)

	require.Len(t, stats, 1)
	assert.Equal(t, 25, stats[0].AbsenceDays)
	assert.Zero(t, stats[0].ExpectedHours)
	assert.Zero(t, stats[0].Percentage)
}
