package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-sync/detect"
	"github.com/warp/planning-sync/notify"
	"github.com/warp/planning-sync/planning"
	"github.com/warp/planning-sync/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type sentMessage struct {
	Title string
	Body  string
	Tags  []string
}

// fakeSender records sends and can be told to fail.
type fakeSender struct {
	sent    []sentMessage
	failAll bool
}

func (f *fakeSender) Send(ctx context.Context, title, body, priority string, tags []string) error {
	if f.failAll {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, sentMessage{Title: title, Body: body, Tags: tags})
	return nil
}

func newTestDispatcher(t *testing.T) (*notify.Dispatcher, *sqlite.Store, *fakeSender) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sender := &fakeSender{}
	return notify.NewDispatcher(store, sender), store, sender
}

func newEvent(start time.Time, plg string) planning.Event {
	end := start.Add(9 * time.Hour)
	return planning.Event{
		Kind:         planning.KindWorkSchedule,
		Start:        &start,
		End:          &end,
		PlanningCode: plg,
	}
}

// =============================================================================
// DISPATCH TESTS
// =============================================================================

func TestDispatch_NewEvent_FrenchMessage(t *testing.T) {
	// GIVEN: One new timed event
	// WHEN: Dispatching
	// THEN: A single French notification is sent with date and clock

	d, store, sender := newTestDispatcher(t)
	ctx := context.Background()

	// 2025-11-03 is a Monday
	ev := newEvent(time.Date(2025, time.November, 3, 8, 0, 0, 0, time.Local), "M1")
	changes := detect.Changes{New: []planning.Event{ev}}

	delivered, err := d.Dispatch(ctx, changes)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Nouveau Creneau", msg.Title)
	assert.Contains(t, msg.Body, "Nouveau créneau ajouté : Work: M1")
	assert.Contains(t, msg.Body, "à 08:00-17:00")
	assert.Contains(t, msg.Body, "le Lundi 03 Nov")
	assert.Equal(t, []string{"calendar", "heavy_plus_sign"}, msg.Tags)

	pending, err := store.UnnotifiedChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "delivered change must be marked notified")
}

func TestDispatch_DeletedAndModified_Messages(t *testing.T) {
	d, _, sender := newTestDispatcher(t)
	ctx := context.Background()

	start := time.Date(2025, time.November, 4, 0, 0, 0, 0, time.Local)
	old := planning.Event{Kind: planning.KindAbsence, Start: &start, AllDay: true, Code: "CP", Label: "Congé payé"}
	oldProj := detect.Project(&old)

	before := newEvent(time.Date(2025, time.November, 5, 8, 0, 0, 0, time.Local), "M1")
	after := newEvent(time.Date(2025, time.November, 5, 9, 0, 0, 0, time.Local), "M1")
	// Same identity, shifted end time only, so the UID is stable.
	after.Start = before.Start
	changes := detect.Changes{
		Deleted:  []detect.Projection{oldProj},
		Modified: []detect.ModifiedPair{{Old: detect.Project(&before), New: detect.Project(&after)}},
	}

	delivered, err := d.Dispatch(ctx, changes)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	require.Len(t, sender.sent, 2)

	deleted := sender.sent[0]
	assert.Equal(t, "Creneau Supprime", deleted.Title)
	assert.Contains(t, deleted.Body, "Créneau supprimé : CP: Congé payé le Mardi 04 Nov")

	modified := sender.sent[1]
	assert.Equal(t, "Creneau Modifie", modified.Title)
	assert.Contains(t, modified.Body, "Avant :")
	assert.Contains(t, modified.Body, "Maintenant :")
}

func TestDispatch_SendFailure_LeavesChangePending(t *testing.T) {
	// GIVEN: A transport that fails on the first dispatch
	// WHEN: Dispatching, then retrying with the transport restored
	// THEN: The change is delivered exactly once, on the retry

	d, store, sender := newTestDispatcher(t)
	ctx := context.Background()

	ev := newEvent(time.Date(2025, time.November, 3, 8, 0, 0, 0, time.Local), "M1")
	changes := detect.Changes{New: []planning.Event{ev}}

	sender.failAll = true
	delivered, err := d.Dispatch(ctx, changes)
	require.NoError(t, err, "a send failure is not a dispatch failure")
	assert.Equal(t, 0, delivered)

	pending, err := store.UnnotifiedChanges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "failed change stays recorded and pending")

	sender.failAll = false
	delivered, err = d.Dispatch(ctx, detect.Changes{})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Len(t, sender.sent, 1)

	pending, err = store.UnnotifiedChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatch_EmptyChanges_NoSends(t *testing.T) {
	d, _, sender := newTestDispatcher(t)

	delivered, err := d.Dispatch(context.Background(), detect.Changes{})
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Empty(t, sender.sent)
}
