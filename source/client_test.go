package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-sync/planning"
	"github.com/warp/planning-sync/source"
)

// =============================================================================
// FETCH ADAPTER TESTS
// =============================================================================

func TestFetchRaw_QueryParamsPerKind(t *testing.T) {
	// GIVEN: A fake remote planning endpoint
	// WHEN: Fetching each kind
	// THEN: The request carries the kind-specific query parameters and
	//       the session credentials

	var lastReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastReq = r.Clone(context.Background())
		w.Write([]byte(`<data></data>`))
	}))
	defer srv.Close()

	client := source.NewClient(srv.URL, "jdoe", source.Session{
		BearerToken: "tok-123",
		Cookies:     map[string]string{"session": "abc"},
	})

	start := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(2026, time.January, 30, 0, 0, 0, 0, time.Local)

	_, err := client.FetchRaw(context.Background(), planning.KindWorkSchedule, start, end)
	require.NoError(t, err)
	q := lastReq.URL.Query()
	assert.Equal(t, "PLG", q.Get("infos"))
	assert.Equal(t, "HORAIRE", q.Get("items"))
	assert.Equal(t, "jdoe", q.Get("mat"))
	assert.Equal(t, "jdoe", q.Get("usr"))
	assert.Equal(t, "01/11/2025", q.Get("start"))
	assert.Equal(t, "30/01/2026", q.Get("end"))
	assert.Equal(t, "Bearer tok-123", lastReq.Header.Get("Authorization"))
	cookie, err := lastReq.Cookie("session")
	require.NoError(t, err)
	assert.Equal(t, "abc", cookie.Value)

	_, err = client.FetchRaw(context.Background(), planning.KindAbsence, start, end)
	require.NoError(t, err)
	q = lastReq.URL.Query()
	assert.Equal(t, "COD", q.Get("infos"))
	assert.Equal(t, "ABSENCEJ", q.Get("items"))
	assert.Contains(t, q.Get("lstabsprf"), "CP")

	_, err = client.FetchRaw(context.Background(), planning.KindActivity, start, end)
	require.NoError(t, err)
	q = lastReq.URL.Query()
	assert.Equal(t, "ACTIVITES", q.Get("items"))
	assert.Equal(t, "*", q.Get("lstabsprf"))
}

func TestFetchRaw_NonOKStatus_IsTransportError(t *testing.T) {
	// GIVEN: A remote endpoint answering 503
	// WHEN: Fetching
	// THEN: The error wraps the transport sentinel so the job retries

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := source.NewClient(srv.URL, "jdoe", source.Session{})

	_, err := client.FetchRaw(context.Background(), planning.KindWorkSchedule, time.Now(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, planning.ErrTransport)
}

func TestFetchRaw_ConnectionRefused_IsTransportError(t *testing.T) {
	client := source.NewClient("http://127.0.0.1:1", "jdoe", source.Session{})

	_, err := client.FetchRaw(context.Background(), planning.KindAbsence, time.Now(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, planning.ErrTransport)
}
