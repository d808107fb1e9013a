package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-sync/notify"
	"github.com/warp/planning-sync/planning"
)

// =============================================================================
// TRANSPORT TESTS
// =============================================================================

func TestSend_PostsToTopicWithHeaders(t *testing.T) {
	// GIVEN: A fake ntfy server
	// WHEN: Sending a notification
	// THEN: The POST hits /<topic> with Title/Priority/Tags headers

	var gotPath, gotTitle, gotPriority, gotTags, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotTags = r.Header.Get("Tags")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	client := notify.NewClient(srv.URL, "planning", true)

	err := client.Send(context.Background(), "Nouveau Creneau", "🆕 message",
		notify.PriorityDefault, []string{"calendar", "heavy_plus_sign"})
	require.NoError(t, err)

	assert.Equal(t, "/planning", gotPath)
	assert.Equal(t, "Nouveau Creneau", gotTitle)
	assert.Equal(t, "default", gotPriority)
	assert.Equal(t, "calendar,heavy_plus_sign", gotTags)
	assert.Equal(t, "🆕 message", gotBody)
}

func TestSend_DisabledClientDropsSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled client must not call the server")
	}))
	defer srv.Close()

	client := notify.NewClient(srv.URL, "planning", false)

	err := client.Send(context.Background(), "t", "b", notify.PriorityLow, nil)
	assert.NoError(t, err)
}

func TestSend_ServerError_IsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := notify.NewClient(srv.URL, "planning", true)

	err := client.Send(context.Background(), "t", "b", notify.PriorityDefault, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, planning.ErrTransport)
}
