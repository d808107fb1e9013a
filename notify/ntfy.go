/*
ntfy.go - Push notification transport (ntfy-compatible)

Sends plain POSTs to <server>/<topic> with Title/Priority/Tags headers
and the message body as UTF-8 text. Titles stay ASCII-safe; emojis go
in the body, where every client renders them correctly.
*/
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/warp/planning-sync/planning"
)

// Priorities understood by the transport.
const (
	PriorityMin     = "min"
	PriorityLow     = "low"
	PriorityDefault = "default"
	PriorityHigh    = "high"
	PriorityUrgent  = "urgent"
)

// Sender is the transport interface consumed by the dispatcher.
type Sender interface {
	Send(ctx context.Context, title, body, priority string, tags []string) error
}

// Client sends push notifications to an ntfy-compatible server.
type Client struct {
	Server  string
	Topic   string
	Enabled bool

	HTTPClient *http.Client
}

// NewClient creates a notification client.
func NewClient(server, topic string, enabled bool) *Client {
	return &Client{
		Server:     strings.TrimRight(server, "/"),
		Topic:      topic,
		Enabled:    enabled,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one notification. Disabled clients drop silently.
func (c *Client) Send(ctx context.Context, title, body, priority string, tags []string) error {
	if !c.Enabled {
		return nil
	}

	url := c.Server + "/" + c.Topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &planning.TransportError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &planning.TransportError{
			Endpoint: url,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	log.Printf("[Notify] Notification sent: %s", title)
	return nil
}

// SendTest sends a low-priority probe so users can verify their topic.
func (c *Client) SendTest(ctx context.Context) error {
	return c.Send(ctx,
		"Planning Sync Actif",
		"🔔 Les notifications fonctionnent ! Vous serez notifié de tout changement dans votre planning.",
		PriorityLow,
		[]string{"white_check_mark"})
}
