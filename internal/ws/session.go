package ws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/defterly/chat-service/internal/chat"
)

// Session is the live, authenticated state of one physical connection.
// It is created only after admission succeeds and is owned by the gateway
// for its whole lifetime.
type Session struct {
	ID   string
	Conn *Connection
	User *chat.User
	Room *chat.Room

	ctx    context.Context
	cancel context.CancelFunc

	lastActivity atomic.Int64 // unix nanoseconds of the last inbound frame
	closed       atomic.Bool  // set once by teardown
}

// NewSession creates a session for an admitted connection. The returned
// session's context is cancelled when the session is torn down; the
// heartbeat and any other per-session work must hang off it.
func NewSession(id string, conn *Connection, user *chat.User, room *chat.Room) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     id,
		Conn:   conn,
		User:   user,
		Room:   room,
		ctx:    ctx,
		cancel: cancel,
	}
	s.Touch()
	return s
}

// Context returns the session's lifetime context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Touch records inbound activity. Every received frame counts; the
// heartbeat uses this to detect dead peers that still accept writes.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IdleFor returns how long ago the last inbound frame arrived.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// markClosed flips the session into the closed state. It returns true only
// for the first caller, so teardown runs exactly once even when the read
// loop, the heartbeat, and a broadcast failure race to trigger it.
func (s *Session) markClosed() bool {
	return s.closed.CompareAndSwap(false, true)
}

// Closed reports whether teardown has started for this session.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
