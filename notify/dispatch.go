/*
dispatch.go - Change notification dispatcher

PURPOSE:
  Consumes the change detector's output and turns each change into at
  most one delivered push notification. Each change is first recorded
  in the store's change log, then sent, then marked notified. A change
  whose transport call fails stays recorded but unnotified, and is
  picked up again on the next dispatch via UnnotifiedChanges — a change
  is never lost, only delayed.
*/
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/warp/planning-sync/detect"
	"github.com/warp/planning-sync/store/sqlite"
)

// Dispatcher records and delivers change notifications.
type Dispatcher struct {
	Store  *sqlite.Store
	Sender Sender
}

// NewDispatcher wires the change log and the transport together.
func NewDispatcher(store *sqlite.Store, sender Sender) *Dispatcher {
	return &Dispatcher{Store: store, Sender: sender}
}

// Dispatch records the detected changes, then attempts delivery of
// every unnotified change (including leftovers from earlier failed
// runs). Returns the number of notifications delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, changes detect.Changes) (int, error) {
	if err := d.record(ctx, changes); err != nil {
		return 0, err
	}
	return d.deliverPending(ctx)
}

// record appends each change to the change log before any delivery is
// attempted, so a transport outage cannot lose a change.
func (d *Dispatcher) record(ctx context.Context, changes detect.Changes) error {
	for i := range changes.New {
		ev := &changes.New[i]
		_, err := d.Store.RecordChange(ctx, sqlite.ChangeNew,
			ev.UniqueID(), ev.DisplayTitle(), "", ev.FormatEventTime())
		if err != nil {
			return err
		}
	}
	for _, p := range changes.Deleted {
		_, err := d.Store.RecordChange(ctx, sqlite.ChangeDeleted,
			p.UID, p.Title, projectionTimeText(p), "")
		if err != nil {
			return err
		}
	}
	for _, pair := range changes.Modified {
		_, err := d.Store.RecordChange(ctx, sqlite.ChangeModified,
			pair.New.UID, pair.New.Title,
			projectionTimeText(pair.Old), projectionTimeText(pair.New))
		if err != nil {
			return err
		}
	}
	return nil
}

// deliverPending sends every unnotified change and marks the delivered
// ones. A send failure leaves its record unnotified for the next run.
func (d *Dispatcher) deliverPending(ctx context.Context) (int, error) {
	pending, err := d.Store.UnnotifiedChanges(ctx)
	if err != nil {
		return 0, err
	}

	var delivered []int64
	for _, change := range pending {
		if err := d.send(ctx, change); err != nil {
			log.Printf("[Notify] Failed to send notification for %s: %v", change.UniqueID, err)
			continue
		}
		delivered = append(delivered, change.ID)
	}

	if err := d.Store.MarkNotified(ctx, delivered); err != nil {
		return len(delivered), err
	}
	return len(delivered), nil
}

func (d *Dispatcher) send(ctx context.Context, change sqlite.ChangeRecord) error {
	switch change.ChangeType {
	case sqlite.ChangeNew:
		return d.sendNew(ctx, change.EventTitle, change.NewTime)
	case sqlite.ChangeDeleted:
		return d.sendDeleted(ctx, change.EventTitle, change.OldTime)
	case sqlite.ChangeModified:
		return d.sendModified(ctx, change.EventTitle, change.OldTime, change.NewTime)
	default:
		log.Printf("[Notify] Unknown change type %q for %s, dropping", change.ChangeType, change.UniqueID)
		return nil
	}
}

func (d *Dispatcher) sendNew(ctx context.Context, title, timeText string) error {
	date, clock := splitTimeText(timeText)
	msg := fmt.Sprintf("Nouveau créneau ajouté : %s", title)
	if clock != "" {
		msg += fmt.Sprintf(" à %s", clock)
	}
	msg += fmt.Sprintf(" le %s", date)
	return d.Sender.Send(ctx, "Nouveau Creneau", "🆕 "+msg,
		PriorityDefault, []string{"calendar", "heavy_plus_sign"})
}

func (d *Dispatcher) sendDeleted(ctx context.Context, title, timeText string) error {
	msg := fmt.Sprintf("Créneau supprimé : %s le %s", title, timeText)
	return d.Sender.Send(ctx, "Creneau Supprime", "❌ "+msg,
		PriorityDefault, []string{"calendar", "x"})
}

func (d *Dispatcher) sendModified(ctx context.Context, title, oldText, newText string) error {
	msg := fmt.Sprintf("%s\nAvant : %s\nMaintenant : %s", title, oldText, newText)
	return d.Sender.Send(ctx, "Creneau Modifie", "✏️ "+msg,
		PriorityDefault, []string{"calendar", "pencil2"})
}

// splitTimeText splits "Lundi 04 Nov 08:00-17:00" into the date part
// and the clock part; all-day texts have no clock part.
func splitTimeText(timeText string) (date, clock string) {
	parts := strings.Fields(timeText)
	if len(parts) >= 4 {
		return strings.Join(parts[:3], " "), parts[len(parts)-1]
	}
	return timeText, ""
}

// projectionTimeText renders a snapshot projection's time the same way
// live events render theirs.
func projectionTimeText(p detect.Projection) string {
	ev, err := p.ToEvent()
	if err != nil {
		return "Date inconnue"
	}
	return ev.FormatEventTime()
}
