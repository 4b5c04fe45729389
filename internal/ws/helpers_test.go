package ws

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/defterly/chat-service/internal/chat"
)

// testClient is the client half of a piped WebSocket connection. A
// background goroutine drains server frames into the events channel.
type testClient struct {
	conn   net.Conn
	events chan map[string]interface{}
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	t.Helper()
	c := &testClient{
		conn:   conn,
		events: make(chan map[string]interface{}, 16),
	}
	go func() {
		defer close(c.events)
		for {
			data, _, err := wsutil.ReadServerData(c.conn)
			if err != nil {
				return
			}
			var evt map[string]interface{}
			if err := json.Unmarshal(data, &evt); err != nil {
				return
			}
			c.events <- evt
		}
	}()
	t.Cleanup(func() { c.conn.Close() })
	return c
}

// next waits for the next server event or fails the test.
func (c *testClient) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case evt, ok := <-c.events:
		if !ok {
			t.Fatal("connection closed while waiting for event")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

// expectNone asserts that no event arrives within the given window.
func (c *testClient) expectNone(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case evt, ok := <-c.events:
		if ok {
			t.Fatalf("expected no event, got %v", evt)
		}
	case <-time.After(window):
	}
}

// newPipeSession creates a Session over an in-memory pipe and the client
// that reads its outbound frames.
func newPipeSession(t *testing.T, user *chat.User, room *chat.Room) (*Session, *testClient) {
	t.Helper()
	server, client := net.Pipe()
	conn := NewConnection(server, 500*time.Millisecond)
	sess := NewSession(uuid.New().String(), conn, user, room)
	t.Cleanup(func() {
		sess.cancel()
		server.Close()
	})
	return sess, newTestClient(t, client)
}

func testRoom() *chat.Room {
	return &chat.Room{
		ID:           "R7",
		Name:         "beyanname-2025",
		AccountantID: "u-acc",
		ClientID:     "u-cli",
		CreatedAt:    time.Now(),
	}
}

func accountantUser() *chat.User {
	return &chat.User{ID: "u-acc", Email: "acc@example.com", Role: chat.RoleAccountant}
}

func clientUser() *chat.User {
	return &chat.User{ID: "u-cli", Email: "cli@example.com", Role: chat.RoleClient}
}

// fakeMessageStore records CreateMessage calls in memory.
type fakeMessageStore struct {
	mu   sync.Mutex
	msgs []chat.CreateMessageParams
	fail bool
}

func (s *fakeMessageStore) CreateMessage(_ context.Context, params chat.CreateMessageParams) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, context.DeadlineExceeded
	}
	s.msgs = append(s.msgs, params)
	return &chat.Message{
		ID:         uuid.New().String(),
		RoomID:     params.RoomID,
		SenderID:   params.SenderID,
		Kind:       params.Kind,
		Content:    params.Content,
		Attachment: params.Attachment,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *fakeMessageStore) last() chat.CreateMessageParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[len(s.msgs)-1]
}
