package ws

import (
	"log"
	"sync"
	"time"

	"github.com/defterly/chat-service/internal/metrics"
)

// RoomRegistry maps room IDs to the set of live sessions subscribed to
// them. It never owns a session's lifetime; it only indexes sessions so
// broadcasts can find their fan-out targets.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
	byID  map[*Session]string // session -> room it is joined to

	// onSendFailure is invoked for each session whose broadcast send
	// failed. The gateway wires this to session teardown.
	onSendFailure func(*Session)
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]map[*Session]struct{}),
		byID:  make(map[*Session]string),
	}
}

// SetOnSendFailure registers the callback invoked when a broadcast send to
// a session fails. Must be called before the first broadcast.
func (r *RoomRegistry) SetOnSendFailure(fn func(*Session)) {
	r.onSendFailure = fn
}

// Join adds a session to a room's broadcast group. Joining twice is a
// no-op; a session joined to a different room is moved, keeping the
// invariant that a session belongs to at most one room-group at a time.
func (r *RoomRegistry) Join(roomID string, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[sess]; ok {
		if prev == roomID {
			return
		}
		r.removeLocked(prev, sess)
	}

	group, ok := r.rooms[roomID]
	if !ok {
		group = make(map[*Session]struct{})
		r.rooms[roomID] = group
	}
	group[sess] = struct{}{}
	r.byID[sess] = roomID
}

// Leave removes a session from a room's broadcast group. Removing a
// non-member is a no-op, never an error.
func (r *RoomRegistry) Leave(roomID string, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(roomID, sess)
}

func (r *RoomRegistry) removeLocked(roomID string, sess *Session) {
	group, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if _, member := group[sess]; !member {
		return
	}
	delete(group, sess)
	delete(r.byID, sess)
	if len(group) == 0 {
		delete(r.rooms, roomID)
	}
}

// Members returns a snapshot of the sessions currently joined to a room.
func (r *RoomRegistry) Members(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.rooms[roomID]
	members := make([]*Session, 0, len(group))
	for sess := range group {
		members = append(members, sess)
	}
	return members
}

// Count returns the number of sessions joined to a room.
func (r *RoomRegistry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Broadcast delivers payload to every session joined to roomID except those
// in exclude. Delivery is best-effort per session: a failed or slow send
// (bounded by the connection write deadline) triggers that session's
// teardown via the onSendFailure callback and never prevents delivery to
// the remaining sessions.
func (r *RoomRegistry) Broadcast(roomID string, payload []byte, exclude ...*Session) {
	start := time.Now()

	// Snapshot membership so sends happen without holding the lock;
	// a concurrent join/leave must never block on a slow receiver.
	targets := r.Members(roomID)

	skip := make(map[*Session]struct{}, len(exclude))
	for _, sess := range exclude {
		skip[sess] = struct{}{}
	}

	for _, sess := range targets {
		if _, excluded := skip[sess]; excluded {
			continue
		}
		if err := sess.Conn.WriteMessage(payload); err != nil {
			log.Printf("ws: broadcast send failed room=%s session=%s: %v", roomID, sess.ID, err)
			if r.onSendFailure != nil {
				r.onSendFailure(sess)
			}
		}
	}

	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
}
