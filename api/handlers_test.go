package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-sync/api"
	"github.com/warp/planning-sync/jobs"
	"github.com/warp/planning-sync/planning"
	"github.com/warp/planning-sync/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(store, jobs.NewStatus())
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func seedEvent(t *testing.T, store *sqlite.Store, start time.Time, plg string) {
	t.Helper()
	end := start.Add(9 * time.Hour)
	_, err := store.UpsertEvents(context.Background(), []planning.Event{{
		Kind:         planning.KindWorkSchedule,
		Start:        &start,
		End:          &end,
		PlanningCode: plg,
	}})
	require.NoError(t, err)
}

// =============================================================================
// STATUS ENDPOINT TESTS
// =============================================================================

func TestGetStatus_EmptyStore(t *testing.T) {
	srv, _ := newTestServer(t)

	var status struct {
		Jobs         map[string]jobs.JobResult `json:"jobs"`
		LastRuns     map[string]*api.RunDTO    `json:"last_runs"`
		EventsStored int                       `json:"events_stored"`
	}
	resp := getJSON(t, srv.URL+"/api/status", &status)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, status.EventsStored)
	assert.Nil(t, status.LastRuns["fetch_planning"])
}

func TestGetStatus_ReflectsRunsAndSettings(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	runID, err := store.StartRun(ctx, "fetch_planning")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(ctx, runID, sqlite.RunSuccess, 7, ""))
	require.NoError(t, store.SetSetting(ctx, "last_fetch_time", "2025-11-01T10:00:00Z"))
	seedEvent(t, store, time.Date(2025, time.November, 3, 8, 0, 0, 0, time.Local), "M1")

	var status struct {
		LastRuns     map[string]*api.RunDTO `json:"last_runs"`
		EventsStored int                    `json:"events_stored"`
		LastFetch    string                 `json:"last_fetch_time"`
	}
	getJSON(t, srv.URL+"/api/status", &status)

	require.NotNil(t, status.LastRuns["fetch_planning"])
	assert.Equal(t, sqlite.RunSuccess, status.LastRuns["fetch_planning"].Status)
	assert.Equal(t, 7, status.LastRuns["fetch_planning"].EventsCount)
	assert.Equal(t, 1, status.EventsStored)
	assert.Equal(t, "2025-11-01T10:00:00Z", status.LastFetch)
}

// =============================================================================
// EVENTS ENDPOINT TESTS
// =============================================================================

func TestListEvents_RangeFilter(t *testing.T) {
	srv, store := newTestServer(t)

	seedEvent(t, store, time.Date(2025, time.November, 3, 8, 0, 0, 0, time.Local), "M1")
	seedEvent(t, store, time.Date(2025, time.December, 1, 8, 0, 0, 0, time.Local), "M2")

	var events []api.EventDTO
	resp := getJSON(t, srv.URL+"/api/events?start=2025-11-01&end=2025-11-30", &events)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, events, 1)
	assert.Equal(t, "Work: M1", events[0].Title)
	assert.Equal(t, "HORAIRE", events[0].Kind)
	require.NotNil(t, events[0].Start)
	assert.InDelta(t, 9.0, events[0].DurationHours, 0.001)
}

func TestListEvents_BadDate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv.URL+"/api/events?start=03/11/2025", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// RUNS ENDPOINT TESTS
// =============================================================================

func TestListRuns_FilterAndLimit(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := store.StartRun(ctx, "fetch_planning")
		require.NoError(t, err)
		require.NoError(t, store.CompleteRun(ctx, id, sqlite.RunSuccess, i, ""))
	}
	id, err := store.StartRun(ctx, "sync_calendar")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(ctx, id, sqlite.RunFailed, 0, "boom"))

	var runs []api.RunDTO
	getJSON(t, srv.URL+"/api/runs?job=fetch_planning&limit=2", &runs)
	require.Len(t, runs, 2)
	assert.Equal(t, "fetch_planning", runs[0].JobType)

	getJSON(t, srv.URL+"/api/runs", &runs)
	assert.Len(t, runs, 4)

	resp := getJSON(t, srv.URL+"/api/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// STATS ENDPOINT TESTS
// =============================================================================

func TestGetStats_TotalsTrailingWindow(t *testing.T) {
	srv, store := newTestServer(t)

	// One 9h shift two days ago, inside the default 6-month window.
	seedEvent(t, store, time.Now().AddDate(0, 0, -2), "M1")

	var stats api.StatsResponse
	resp := getJSON(t, srv.URL+"/api/stats", &stats)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, stats.Months)
	assert.InDelta(t, 9.0, stats.TotalHours, 0.001)

	resp = getJSON(t, srv.URL+"/api/stats?months=99", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
