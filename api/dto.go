/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures returned by the read-only monitoring API.
  These types decouple the internal domain model from the external API
  contract, allowing:
  - Field renaming without breaking clients
  - API-specific formatting (times as strings, hours rounded)

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/planning-sync/jobs"
	"github.com/warp/planning-sync/planning"
	"github.com/warp/planning-sync/store/sqlite"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EventDTO represents a canonical event in API responses.
type EventDTO struct {
	UniqueID      string  `json:"unique_id"`
	Kind          string  `json:"kind"`
	Title         string  `json:"title"`
	Start         *string `json:"start"`
	End           *string `json:"end"`
	AllDay        bool    `json:"all_day"`
	Code          string  `json:"code,omitempty"`
	Label         string  `json:"label,omitempty"`
	Description   string  `json:"description,omitempty"`
	DurationHours float64 `json:"duration_hours"`
}

// RunDTO represents one job execution from the audit log.
type RunDTO struct {
	ID              int64   `json:"id"`
	JobType         string  `json:"job_type"`
	Status          string  `json:"status"`
	EventsCount     int     `json:"events_count"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	StartedAt       string  `json:"started_at"`
	CompletedAt     *string `json:"completed_at"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// StatusResponse is the aggregate health view: in-memory latest results
// plus the durable last run per job and fetch bookkeeping.
type StatusResponse struct {
	Jobs         map[string]jobs.JobResult `json:"jobs"`
	LastRuns     map[string]*RunDTO        `json:"last_runs"`
	EventsStored int                       `json:"events_stored"`
	LastFetch    string                    `json:"last_fetch_time,omitempty"`
	LastSync     string                    `json:"last_calendar_sync,omitempty"`
}

// StatsResponse carries the monthly breakdown plus the range total.
type StatsResponse struct {
	TotalHours float64        `json:"total_hours"`
	Months     []MonthStatDTO `json:"months"`
}

// MonthStatDTO is one month's worked-hours summary.
type MonthStatDTO struct {
	Month         string  `json:"month"`
	Year          int     `json:"year"`
	MonthNum      int     `json:"month_num"`
	HoursWorked   float64 `json:"hours_worked"`
	ExpectedHours float64 `json:"expected_hours_80"`
	AbsenceDays   int     `json:"absence_days"`
	Percentage    float64 `json:"percentage"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEventDTO(ev *planning.Event) EventDTO {
	dto := EventDTO{
		UniqueID:      ev.UniqueID(),
		Kind:          ev.Kind.String(),
		Title:         ev.DisplayTitle(),
		AllDay:        ev.AllDay,
		Code:          ev.Code,
		Label:         ev.Label,
		Description:   ev.DisplayDescription(),
		DurationHours: ev.DurationHours(),
	}
	if ev.Start != nil {
		dto.Start = strPtr(ev.Start.Format(time.RFC3339))
	}
	if ev.End != nil {
		dto.End = strPtr(ev.End.Format(time.RFC3339))
	}
	return dto
}

func toRunDTO(run *sqlite.JobRun) *RunDTO {
	if run == nil {
		return nil
	}
	dto := &RunDTO{
		ID:              run.ID,
		JobType:         run.JobType,
		Status:          run.Status,
		EventsCount:     run.EventsCount,
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       run.StartedAt.Format(time.RFC3339),
		DurationSeconds: run.DurationSeconds,
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = strPtr(run.CompletedAt.Format(time.RFC3339))
	}
	return dto
}

func strPtr(s string) *string {
	return &s
}
