// Package matrix provides the staff-side Matrix client. The concierge never
// talks Matrix to guests; this client exists solely to post escalation
// notices into the hostel's ops room.
package matrix

import (
	"context"
	"fmt"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// Client wraps a send-only mautrix client.
type Client struct {
	client *mautrix.Client
}

// sendTimeout bounds a single notice send so a slow homeserver cannot stall
// an escalation turn.
const sendTimeout = 10 * time.Second

// New creates a send-only Matrix client. No sync loop is started; the
// concierge only posts notices.
func New(cfg Config) (*Client, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	return &Client{client: client}, nil
}

// SendNotice posts a notice message (less intrusive than a normal message)
// to the given room. It satisfies escalate.Sender.
func (c *Client) SendNotice(roomID, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}
