/*
client.go - Remote planning source fetch adapter

PURPOSE:
  Fetches the raw per-kind XML feeds (schedule, absences, activities)
  from the remote planning system over an already-authenticated session.
  Authentication itself is out of scope: the caller injects a Session
  (bearer token + cookies) obtained elsewhere.

CONTRACT:
  FetchRaw returns a parseable payload or an error. Absence of data is
  an empty payload, never an error. Transport-level failures wrap
  planning.ErrTransport so the job run is marked failed and retried on
  the next tick.
*/
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/warp/planning-sync/planning"
)

// Absence profile codes requested from the feed. The remote side only
// returns absence rows whose code is in this list.
const absenceProfiles = "CAP,CPA,CRM,CTJ,DC,DEL,DS,EM,MAL,RCA,RCF,RCH,RCJ,RCN,RHS," +
	"AA,AAQ,ANJ,ASA,AT,CA,CAM,CAR,CDC,CEM,CET,CTH,CF,CHS,CM,CMA,CME,COB,CP,CPE," +
	"CPP,CSF,CSS,DON,EXC,F,FO,GNR,JNT,MAT,NE,OAJ,OAT,PAT,RCD,RF,RH,RTT"

// Session holds pre-acquired credentials for the remote system.
type Session struct {
	BearerToken string
	Cookies     map[string]string
}

// Client fetches raw feed payloads from the remote planning system.
type Client struct {
	BaseURL  string
	Username string
	Session  Session

	HTTPClient *http.Client
}

// NewClient creates a feed client with a sane default HTTP timeout.
func NewClient(baseURL, username string, session Session) *Client {
	return &Client{
		BaseURL:    baseURL,
		Username:   username,
		Session:    session,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchRaw retrieves the raw XML payload for one event kind over the
// given date range.
func (c *Client) FetchRaw(ctx context.Context, kind planning.Kind, start, end time.Time) ([]byte, error) {
	url := c.BaseURL + "/planning.wsc/asical.html"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}

	q := req.URL.Query()
	switch kind {
	case planning.KindWorkSchedule:
		q.Set("infos", "PLG")
		q.Set("lstabsprf", "*")
		q.Set("items", "HORAIRE")
	case planning.KindAbsence:
		q.Set("infos", "COD")
		q.Set("lstabsprf", absenceProfiles)
		q.Set("items", "ABSENCEJ")
	case planning.KindActivity:
		q.Set("infos", "COD")
		q.Set("lstabsprf", "*")
		q.Set("items", "ACTIVITES")
	}
	q.Set("mat", c.Username)
	q.Set("usr", c.Username)
	q.Set("start", start.Format("02/01/2006"))
	q.Set("end", end.Format("02/01/2006"))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/xml, text/xml, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.Session.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.Session.BearerToken)
	}
	for name, value := range c.Session.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &planning.TransportError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &planning.TransportError{
			Endpoint: url,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &planning.TransportError{Endpoint: url, Err: err}
	}
	return body, nil
}
