/*
stats.go - Monthly worked-hours statistics

PURPOSE:
  Aggregates stored events into per-month summaries for the dashboard:
  hours actually worked versus the contractual expectation, with the
  expectation reduced for each day covered by an absence.

CONTRACT MODEL (80% schedule):
  28h/week, average month = 4.33 weeks = 121.24h/month, 5.6h/working day.
  An absence day reduces the month's expected hours by one working day.

DECIMAL ARITHMETIC:
  Hour sums and percentages use decimal so repeated additions of
  fractional durations do not drift the way float64 accumulation does.
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-sync/planning"
)

var (
	baseMonthlyHours = decimal.NewFromFloat(121.24)
	dailyHours       = decimal.NewFromInt(28).Div(decimal.NewFromInt(5))
	hundred          = decimal.NewFromInt(100)
)

type monthBucket struct {
	worked      decimal.Decimal
	absenceDays map[string]struct{}
}

// MonthlyStats aggregates events into per-month summaries, oldest first.
func MonthlyStats(events []planning.Event) []MonthStatDTO {
	buckets := make(map[string]*monthBucket)

	bucketFor := func(key string) *monthBucket {
		b, ok := buckets[key]
		if !ok {
			b = &monthBucket{worked: decimal.Zero, absenceDays: make(map[string]struct{})}
			buckets[key] = b
		}
		return b
	}

	for i := range events {
		ev := &events[i]
		if ev.Start == nil {
			continue
		}
		key := ev.Start.Format("2006-01")
		b := bucketFor(key)

		switch ev.Kind {
		case planning.KindWorkSchedule:
			b.worked = b.worked.Add(decimal.NewFromFloat(ev.DurationHours()))
		case planning.KindAbsence, planning.KindActivity:
			// Multi-day absences count every covered day.
			day, _ := ev.StartDate()
			last := day
			if ev.End != nil {
				e := *ev.End
				last = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, e.Location())
			}
			for !day.After(last) {
				b.absenceDays[day.Format("2006-01-02")] = struct{}{}
				day = day.AddDate(0, 0, 1)
			}
		}
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	stats := make([]MonthStatDTO, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		month, err := time.Parse("2006-01", key)
		if err != nil {
			continue
		}

		absences := len(b.absenceDays)
		expected := baseMonthlyHours.Sub(dailyHours.Mul(decimal.NewFromInt(int64(absences))))
		if expected.IsNegative() {
			expected = decimal.Zero
		}

		percentage := decimal.Zero
		if expected.IsPositive() {
			percentage = b.worked.Div(expected).Mul(hundred)
		}

		stats = append(stats, MonthStatDTO{
			Month:         month.Format("Jan"),
			Year:          month.Year(),
			MonthNum:      int(month.Month()),
			HoursWorked:   b.worked.Round(2).InexactFloat64(),
			ExpectedHours: expected.Round(2).InexactFloat64(),
			AbsenceDays:   absences,
			Percentage:    percentage.Round(1).InexactFloat64(),
		})
	}
	return stats
}
