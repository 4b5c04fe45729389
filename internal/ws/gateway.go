// Package ws implements the real-time chat transport: connection admission,
// session lifecycle, room-scoped broadcast groups, heartbeat supervision,
// and the per-frame message router. Each admitted connection gets one
// goroutine for its receive loop and one for its heartbeat; the only state
// shared between connections is the RoomRegistry.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"

	"github.com/defterly/chat-service/internal/auth"
	"github.com/defterly/chat-service/internal/chat"
	"github.com/defterly/chat-service/internal/metrics"
	"github.com/defterly/chat-service/internal/protocol"
)

// admissionTimeout bounds the token validation and room lookup performed
// while admitting one connection.
const admissionTimeout = 5 * time.Second

// ServerConfig holds tunable parameters for the chat gateway.
type ServerConfig struct {
	ListenAddr     string          // address to listen on, e.g. ":8080"
	MaxConnections int             // hard cap on total connections
	WriteTimeout   time.Duration   // per-send deadline for outbound frames
	Heartbeat      HeartbeatConfig // heartbeat supervision settings
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 10000,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// TokenValidator verifies a bearer credential and resolves it to a user.
// *auth.TokenValidator satisfies it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*chat.User, error)
}

// Gateway is the top-level orchestrator. It accepts new connections,
// admits them against the token validator and room store, wires admitted
// sessions into the RoomRegistry, and tears everything down on disconnect.
type Gateway struct {
	config   ServerConfig
	registry *RoomRegistry
	router   *Router
	tokens   TokenValidator
	rooms    chat.RoomStore
	presence PresenceTracker // optional, may be nil

	httpServer *http.Server
	startedAt  time.Time

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewGateway creates a gateway. The registry must be the same one the
// router broadcasts through; the gateway wires its send-failure callback to
// session teardown.
func NewGateway(config ServerConfig, registry *RoomRegistry, router *Router, tokens TokenValidator, rooms chat.RoomStore) *Gateway {
	g := &Gateway{
		config:   config,
		registry: registry,
		router:   router,
		tokens:   tokens,
		rooms:    rooms,
		sessions: make(map[*Session]struct{}),
	}
	registry.SetOnSendFailure(g.Teardown)
	return g
}

// SetPresence enables presence tracking for admitted sessions.
func (g *Gateway) SetPresence(p PresenceTracker) {
	g.presence = p
}

// Start begins serving WebSocket upgrades on /ws/chat/{roomID}, plus the
// health and metrics endpoints. It blocks until the listener fails or
// Shutdown is called.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat/", g.HandleChat)
	mux.HandleFunc("/health", g.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	g.httpServer = &http.Server{
		Addr:    g.config.ListenAddr,
		Handler: mux,
	}

	log.Printf("ws: gateway listening on %s (max_conns=%d, heartbeat=%s)",
		g.config.ListenAddr, g.config.MaxConnections, g.config.Heartbeat.Interval)

	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// HandleChat upgrades an HTTP request to a WebSocket connection, runs
// admission, and on success serves the session's receive loop until
// disconnect. Exported so tests can mount it on their own server.
func (g *Gateway) HandleChat(w http.ResponseWriter, r *http.Request) {
	roomID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/chat/"), "/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.NotFound(w, r)
		return
	}

	if g.sessionCount() >= g.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	// The upgrade happens before admission: refusing with a distinct close
	// code needs an established WebSocket to write the close frame on.
	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	conn := NewConnection(netConn, g.config.WriteTimeout)

	ctx, cancel := context.WithTimeout(r.Context(), admissionTimeout)
	user, room, err := g.admit(ctx, roomID, r.URL.RawQuery)
	cancel()
	if err != nil {
		code, result := refusal(err)
		log.Printf("ws: admission refused room=%s code=%d: %v", roomID, code, err)
		metrics.AdmissionsTotal.WithLabelValues(result).Inc()
		_ = conn.WriteClose(code, result)
		_ = conn.Close()
		return
	}

	sess := NewSession(uuid.New().String(), conn, user, room)
	g.addSession(sess)

	// Registration happens only after admission succeeded; the registry can
	// never hold a half-admitted session.
	g.registry.Join(room.ID, sess)

	if g.presence != nil {
		pctx, pcancel := context.WithTimeout(context.Background(), admissionTimeout)
		if err := g.presence.MarkOnline(pctx, room.ID, user.ID, sess.ID); err != nil {
			log.Printf("ws: mark online session=%s: %v", sess.ID, err)
		}
		pcancel()
	}

	established, err := protocol.NewServerEvent(protocol.TypeConnectionEstablished, protocol.ConnectionEstablishedEvent{
		Message: "connection established",
		User: protocol.UserInfo{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		},
	})
	if err == nil {
		if err := conn.WriteMessage(established); err != nil {
			log.Printf("ws: send connection_established session=%s: %v", sess.ID, err)
			g.Teardown(sess)
			return
		}
	}

	metrics.AdmissionsTotal.WithLabelValues("accepted").Inc()
	metrics.ConnectionsActive.Inc()
	log.Printf("ws: session admitted session=%s room=%s user=%s (total=%d)",
		sess.ID, room.ID, user.ID, g.sessionCount())

	StartHeartbeat(sess, g.config.Heartbeat, g.Teardown, func() {
		if g.presence == nil {
			return
		}
		pctx, pcancel := context.WithTimeout(context.Background(), admissionTimeout)
		defer pcancel()
		if err := g.presence.Refresh(pctx, room.ID, user.ID); err != nil {
			log.Printf("ws: presence refresh session=%s: %v", sess.ID, err)
		}
	})

	g.serve(sess)
}

// serve is the per-session receive loop. Frames are processed strictly in
// arrival order; the loop exits on any read error, which covers both
// client-initiated close and transport failure.
func (g *Gateway) serve(sess *Session) {
	defer g.Teardown(sess)

	for {
		data, err := sess.Conn.ReadMessage()
		if err != nil {
			log.Printf("ws: read loop ended session=%s: %v", sess.ID, err)
			return
		}
		sess.Touch()
		if len(data) == 0 {
			continue
		}
		g.router.Route(sess, data)
	}
}

// admit runs the full admission sequence: token extraction, validation,
// room lookup, and the participant check.
func (g *Gateway) admit(ctx context.Context, roomID, rawQuery string) (*chat.User, *chat.Room, error) {
	token := auth.TokenFromQuery(rawQuery)

	user, err := g.tokens.Validate(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	room, err := g.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsParticipant(user.ID) {
		return nil, nil, fmt.Errorf("ws: user %s is not a participant of room %s", user.ID, roomID)
	}
	return user, room, nil
}

// refusal maps an admission error to its close code and a short label used
// both as the close reason and the metrics outcome.
func refusal(err error) (uint16, string) {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return protocol.CloseTokenMissing, "token_missing"
	case errors.Is(err, auth.ErrTokenExpired):
		return protocol.CloseTokenExpired, "token_expired"
	case errors.Is(err, auth.ErrTokenInvalid):
		return protocol.CloseTokenInvalid, "token_invalid"
	case errors.Is(err, auth.ErrUserNotFound):
		return protocol.CloseUserNotFound, "user_not_found"
	default:
		return protocol.CloseGeneric, "error"
	}
}

// Teardown dismantles a session: heartbeat cancellation, registry removal,
// presence cleanup, socket close. Every step runs even if an earlier one
// fails; calling it more than once is safe.
func (g *Gateway) Teardown(sess *Session) {
	if !sess.markClosed() {
		return
	}

	sess.cancel()
	g.registry.Leave(sess.Room.ID, sess)

	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), admissionTimeout)
		if err := g.presence.MarkOffline(ctx, sess.Room.ID, sess.User.ID); err != nil {
			log.Printf("ws: mark offline session=%s: %v", sess.ID, err)
		}
		cancel()
	}

	if err := sess.Conn.Close(); err != nil {
		log.Printf("ws: close conn session=%s: %v", sess.ID, err)
	}

	g.removeSession(sess)
	metrics.ConnectionsActive.Dec()
	log.Printf("ws: session closed session=%s room=%s (total=%d)", sess.ID, sess.Room.ID, g.sessionCount())
}

// handleHealth responds with the gateway's health status as JSON, including
// the current session count and uptime.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Uptime   string `json:"uptime"`
	}{
		Status:   "ok",
		Sessions: g.sessionCount(),
		Uptime:   time.Since(g.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown performs a graceful shutdown: it stops the HTTP listener and
// tears down all active sessions.
func (g *Gateway) Shutdown() error {
	log.Println("ws: shutting down gateway...")

	if g.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, sess := range g.activeSessions() {
		g.Teardown(sess)
	}

	log.Printf("ws: gateway stopped, all sessions closed")
	return nil
}

func (g *Gateway) addSession(sess *Session) {
	g.mu.Lock()
	g.sessions[sess] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) removeSession(sess *Session) {
	g.mu.Lock()
	delete(g.sessions, sess)
	g.mu.Unlock()
}

func (g *Gateway) sessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) activeSessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	sessions := make([]*Session, 0, len(g.sessions))
	for sess := range g.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}
