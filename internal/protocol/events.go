// Package protocol defines the WebSocket event types and structures exchanged
// between the chat gateway and its clients. Every frame carries exactly one
// JSON object with a "type" discriminator selecting the payload shape.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypePing    = "ping"
	TypePong    = "pong"
	TypeMessage = "message"
	TypeFile    = "file"
)

// Server -> Client event types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNotification          = "notification"
)

// Close codes used when refusing admission. Each failure kind gets its own
// code so clients can distinguish causes without parsing a reason string.
const (
	CloseGeneric      = 4000
	CloseTokenMissing = 4001
	CloseUserNotFound = 4002
	CloseTokenInvalid = 4003
	CloseTokenExpired = 4004
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event structs
// ---------------------------------------------------------------------------

// PingEvent is a client-initiated keepalive ping.
type PingEvent struct {
	Type string `json:"type"`
}

// PongEvent is the client's answer to a server heartbeat ping.
type PongEvent struct {
	Type string `json:"type"`
}

// MessageEvent is a text message sent by the client within a room.
type MessageEvent struct {
	Type string      `json:"type"`
	Data MessageData `json:"data"`
}

// MessageData carries the body of an inbound text message. RoomID is
// optional; when present it must match the room the session is joined to.
type MessageData struct {
	Content string `json:"content"`
	RoomID  string `json:"room_id,omitempty"`
}

// FileEvent is a file attachment sent by the client within a room.
type FileEvent struct {
	Type string   `json:"type"`
	File FileData `json:"file"`
}

// FileData carries an inbound attachment. Content is a data URI of the form
// "<mime>;base64,<data>".
type FileData struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// UserInfo identifies a message sender to clients.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ConnectionEstablishedEvent is sent once after a connection is admitted.
type ConnectionEstablishedEvent struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	User    UserInfo `json:"user"`
}

// ServerPingEvent is the heartbeat ping sent periodically by the server.
type ServerPingEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ServerPongEvent is the server's reply to a client ping.
type ServerPongEvent struct {
	Type string `json:"type"`
}

// AttachmentInfo describes a stored file attachment on an outbound message.
type AttachmentInfo struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ChatMessageData is the payload of an outbound message event. It is the
// authoritative echo every client (sender included) uses to reconcile its
// optimistic UI.
type ChatMessageData struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Sender    UserInfo        `json:"sender"`
	Timestamp string          `json:"timestamp"`
	RoomID    string          `json:"room_id"`
	File      *AttachmentInfo `json:"file,omitempty"`
}

// ChatMessageEvent is broadcast to every session in a room when a message
// is accepted.
type ChatMessageEvent struct {
	Type string          `json:"type"`
	Data ChatMessageData `json:"data"`
}

// NotificationData is the payload of a notification event, delivered to
// every room participant except the author.
type NotificationData struct {
	Message string   `json:"message"`
	RoomID  string   `json:"room_id"`
	Sender  UserInfo `json:"sender"`
}

// NotificationEvent alerts the other party that a new message arrived.
type NotificationEvent struct {
	Type string           `json:"type"`
	Data NotificationData `json:"data"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientEvent parses raw WebSocket bytes into a typed client event.
// It returns the event type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only event types.
func ParseClientEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		evt interface{}
		err error
	)

	switch env.Type {
	case TypePing:
		var e PingEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypePong:
		var e PongEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeMessage:
		var e MessageEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	case TypeFile:
		var e FileEvent
		err = json.Unmarshal(env.Raw, &e)
		evt = e
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, evt, nil
}

// NewServerEvent creates a JSON-encoded byte slice for a server event.
// The evtType is injected into the payload under the "type" key. The payload
// should be one of the server event structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerEvent(evtType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = evtType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server event: %w", err)
	}
	return out, nil
}

// NewServerPing builds a heartbeat ping event carrying the given timestamp
// in RFC 3339 format.
func NewServerPing(ts time.Time) ([]byte, error) {
	return NewServerEvent(TypePing, ServerPingEvent{
		Timestamp: ts.Format(time.RFC3339),
	})
}
