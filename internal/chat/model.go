// Package chat defines the persistent domain model for rooms, messages, and
// users, and the PostgreSQL store behind it. The transport layer only ever
// touches this package through the narrow store interfaces below.
package chat

import (
	"context"
	"time"
)

// Message kinds.
const (
	KindText = "text"
	KindFile = "file"
)

// User roles on the platform.
const (
	RoleAccountant = "accountant"
	RoleClient     = "client"
)

// User is the resolved identity behind an authenticated connection.
type User struct {
	ID    string
	Email string
	Role  string
}

// Room is a fixed two-party conversation between an accountant and a client.
// Membership is immutable after creation.
type Room struct {
	ID           string
	Name         string
	AccountantID string
	ClientID     string
	CreatedAt    time.Time
}

// IsParticipant reports whether the given user belongs to this room.
func (r *Room) IsParticipant(userID string) bool {
	return userID == r.AccountantID || userID == r.ClientID
}

// Counterpart returns the other participant's user ID, or "" if the given
// user is not a participant.
func (r *Room) Counterpart(userID string) string {
	switch userID {
	case r.AccountantID:
		return r.ClientID
	case r.ClientID:
		return r.AccountantID
	}
	return ""
}

// Attachment describes a stored file linked to a message.
type Attachment struct {
	URL         string
	Name        string
	ContentType string
	Size        int64
}

// Message is one chat message. Created exactly once per accepted inbound
// event and never mutated afterwards.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	Kind       string // text | file
	Content    string
	Attachment *Attachment // nil for text messages
	CreatedAt  time.Time
}

// CreateMessageParams carries the fields needed to persist a new message.
type CreateMessageParams struct {
	RoomID     string
	SenderID   string
	Kind       string
	Content    string
	Attachment *Attachment
}

// MessageStore persists chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (*Message, error)
}

// RoomStore resolves room identifiers to rooms.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
}

// UserStore resolves identity claims to user records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}
