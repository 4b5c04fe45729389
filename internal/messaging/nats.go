// Package messaging provides a NATS client wrapper used to hand events to
// the platform's out-of-process collaborators. The chat gateway publishes a
// notify event whenever a message arrives for a participant who is not
// currently connected; the push/email notifier service consumes them.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	// SubjectNotify carries offline-notification events, one subject per
	// room: chat.notify.<room_id>.
	SubjectNotify = "chat.notify"
)

// NotifyEvent is the payload published for the notifier service when a room
// participant should be alerted out-of-band.
type NotifyEvent struct {
	RoomID      string `json:"room_id"`
	RecipientID string `json:"recipient_id"`
	SenderEmail string `json:"sender_email"`
	Preview     string `json:"preview"` // message text, or the attachment name
	Kind        string `json:"kind"`    // text | file
	Ts          int64  `json:"ts"`      // unix timestamp
}

// NATSClient wraps the NATS connection with publish helpers.
type NATSClient struct {
	conn *nats.Conn
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "chat-gateway",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats: disconnected: %v", err)
			} else {
				log.Printf("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats: connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("nats: connected to %s", nc.ConnectedUrl())

	return &NATSClient{conn: nc}, nil
}

// PublishNotify publishes a notify event to chat.notify.<roomID>.
func (c *NATSClient) PublishNotify(event NotifyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal notify event: %w", err)
	}
	subject := SubjectNotify + "." + event.RoomID
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("nats: drain error: %v", err)
	}
}
