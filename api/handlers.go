/*
handlers.go - HTTP API handlers for the planning sync service

PURPOSE:
  Exposes the sync pipeline's state via a read-only REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the store
  and status record. The API never mutates pipeline state; the jobs own
  all writes.

ENDPOINTS:
  GET /api/status        Latest per-job results + store bookkeeping
  GET /api/events        Stored events, optional ?start=&end= (YYYY-MM-DD)
  GET /api/runs          Job run history, optional ?job=&limit=
  GET /api/stats         Monthly worked-hours statistics

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid query parameters
  - 500: Store errors

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/warp/planning-sync/jobs"
	"github.com/warp/planning-sync/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Status *jobs.Status

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a handler around the store and job status record.
func NewHandler(store *sqlite.Store, status *jobs.Status) *Handler {
	return &Handler{Store: store, Status: status, Now: time.Now}
}

// =============================================================================
// STATUS
// =============================================================================

// GetStatus returns the latest per-job results together with the
// durable last run rows and fetch bookkeeping from settings.
// GET /api/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{
		Jobs:     h.Status.Results(),
		LastRuns: make(map[string]*RunDTO, 3),
	}
	for _, jobType := range []string{jobs.JobFetch, jobs.JobCalendar, jobs.JobNotify} {
		run, err := h.Store.LastRun(ctx, jobType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read run log", err)
			return
		}
		resp.LastRuns[jobType] = toRunDTO(run)
	}

	count, err := h.Store.CountEvents(ctx, nil, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events", err)
		return
	}
	resp.EventsStored = count

	resp.LastFetch, _ = h.Store.GetSetting(ctx, "last_fetch_time", "")
	resp.LastSync, _ = h.Store.GetSetting(ctx, "last_calendar_sync", "")

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// EVENTS
// =============================================================================

// ListEvents returns stored events, optionally bounded by start/end
// date query parameters (YYYY-MM-DD, inclusive).
// GET /api/events?start=2025-11-01&end=2025-11-30
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	start, err := parseDateParam(r, "start", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := parseDateParam(r, "end", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	events, err := h.Store.QueryEvents(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i := range events {
		dtos[i] = toEventDTO(&events[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// ListRuns returns the job run history, newest first.
// GET /api/runs?job=fetch_planning&limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	jobType := r.URL.Query().Get("job")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.RunHistory(r.Context(), jobType, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read run history", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i := range runs {
		dtos[i] = *toRunDTO(&runs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STATS
// =============================================================================

// GetStats returns monthly worked-hours statistics for the trailing
// window (default 6 months, ?months= to override).
// GET /api/stats?months=12
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	months := 6
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 24 {
			writeError(w, http.StatusBadRequest, "Invalid months", err)
			return
		}
		months = n
	}

	now := h.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(months - 1), 0)
	end := now

	events, err := h.Store.QueryEvents(r.Context(), &start, &end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query events", err)
		return
	}

	monthly := MonthlyStats(events)
	total := 0.0
	for _, m := range monthly {
		total += m.HoursWorked
	}
	writeJSON(w, http.StatusOK, StatsResponse{TotalHours: total, Months: monthly})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseDateParam reads an optional YYYY-MM-DD query parameter. endOfDay
// moves the bound to 23:59:59 so date ranges are day-inclusive.
func parseDateParam(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
