/*
caldav.go - CalDAV push adapter

PURPOSE:
  Writes canonical events to a remote CalDAV calendar collection. Each
  event is PUT under its deterministic UID, so repeated pushes of an
  unchanged set converge without creating duplicates. ClearRange removes
  previously pushed events (identified by the sync marker category)
  before a fresh push.

ERROR MAPPING:
  All network and HTTP-status failures wrap planning.ErrTransport so the
  calendar job is marked failed and retried on the next tick.
*/
package calendar

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/warp/planning-sync/planning"
)

// Client pushes events to one CalDAV calendar collection.
type Client struct {
	// CollectionURL is the full URL of the calendar collection,
	// including trailing slash.
	CollectionURL string
	Username      string
	Password      string

	HTTPClient *http.Client
}

// NewClient creates a CalDAV client with a default HTTP timeout.
func NewClient(collectionURL, username, password string) *Client {
	if !strings.HasSuffix(collectionURL, "/") {
		collectionURL += "/"
	}
	return &Client{
		CollectionURL: collectionURL,
		Username:      username,
		Password:      password,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Upsert writes one event to the collection, creating or replacing the
// resource named by its deterministic UID.
func (c *Client) Upsert(ctx context.Context, ev *planning.Event) error {
	if ev.Start == nil {
		log.Printf("[Calendar] Skipping event without start date: %s", ev.DisplayTitle())
		return nil
	}

	url := c.CollectionURL + EventUID(ev) + ".ics"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url,
		strings.NewReader(BuildICS(ev)))
	if err != nil {
		return fmt.Errorf("building calendar request: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &planning.TransportError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 412 on If-None-Match is not used here; any 2xx means converged.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &planning.TransportError{
			Endpoint: url,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return nil
}

// ClearRange deletes previously pushed events whose start falls inside
// [start, end]. Only resources carrying the sync marker are removed.
func (c *Client) ClearRange(ctx context.Context, start, end time.Time) error {
	hrefs, err := c.queryRange(ctx, start, end)
	if err != nil {
		return err
	}

	deleted := 0
	for _, href := range hrefs {
		if err := c.delete(ctx, href); err != nil {
			// A single undeletable resource is logged and skipped; the
			// subsequent upsert by UID still converges.
			log.Printf("[Calendar] Could not delete %s: %v", href, err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		log.Printf("[Calendar] Deleted %d existing events", deleted)
	}
	return nil
}

const calendarQueryTemplate = `<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag/>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="%s" end="%s"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

type multistatus struct {
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href     string        `xml:"href"`
	Propstat []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Prop davProp `xml:"prop"`
}

type davProp struct {
	CalendarData string `xml:"calendar-data"`
}

// queryRange runs a calendar-query REPORT and returns the hrefs of
// resources in the range that carry the sync marker.
func (c *Client) queryRange(ctx context.Context, start, end time.Time) ([]string, error) {
	body := fmt.Sprintf(calendarQueryTemplate,
		start.UTC().Format("20060102T150405Z"),
		end.UTC().Format("20060102T150405Z"))

	req, err := http.NewRequestWithContext(ctx, "REPORT", c.CollectionURL,
		strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building calendar query: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "1")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &planning.TransportError{Endpoint: c.CollectionURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, &planning.TransportError{
			Endpoint: c.CollectionURL,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &planning.TransportError{Endpoint: c.CollectionURL, Err: err}
	}

	var ms multistatus
	if err := xml.Unmarshal(raw, &ms); err != nil {
		return nil, fmt.Errorf("%w: decoding calendar query response: %v", planning.ErrParse, err)
	}

	var hrefs []string
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			if strings.Contains(ps.Prop.CalendarData, SyncMarker) {
				hrefs = append(hrefs, r.Href)
				break
			}
		}
	}
	return hrefs, nil
}

func (c *Client) delete(ctx context.Context, href string) error {
	url := href
	if strings.HasPrefix(href, "/") {
		base := c.CollectionURL
		if i := strings.Index(base, "//"); i >= 0 {
			if j := strings.Index(base[i+2:], "/"); j >= 0 {
				url = base[:i+2+j] + href
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &planning.TransportError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNotFound {
		return &planning.TransportError{
			Endpoint: url,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return nil
}
