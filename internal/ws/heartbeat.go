package ws

import (
	"log"
	"time"

	"github.com/defterly/chat-service/internal/protocol"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // grace period beyond Interval before eviction (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat
// supervision.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat runs the per-session heartbeat loop in a new goroutine.
// Each tick sends a ping event carrying the current timestamp; a session
// with no inbound activity for Interval+Timeout is considered dead and
// evicted instead. The loop exits on session-context cancellation, on any
// send error (evicting the session), or on eviction. onTick, when non-nil,
// runs on every successful ping (the gateway uses it to refresh presence).
func StartHeartbeat(sess *Session, config HeartbeatConfig, evict func(*Session), onTick func()) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-sess.Context().Done():
				return
			case <-ticker.C:
				// Unreachable post-admission; kept as a guard so a broken
				// construction path can never ping an anonymous socket.
				if sess.User == nil {
					log.Printf("ws: heartbeat on unauthenticated session %s, stopping", sess.ID)
					return
				}

				if idle := sess.IdleFor(); idle > config.Interval+config.Timeout {
					log.Printf("ws: heartbeat timeout session=%s idle=%s", sess.ID, idle.Round(time.Second))
					evict(sess)
					return
				}

				ping, err := protocol.NewServerPing(time.Now().UTC())
				if err != nil {
					// Marshalling a timestamp cannot realistically fail; log
					// and stop rather than crash the process.
					log.Printf("ws: heartbeat build ping session=%s: %v", sess.ID, err)
					return
				}
				if err := sess.Conn.WriteMessage(ping); err != nil {
					log.Printf("ws: heartbeat send failed session=%s: %v", sess.ID, err)
					evict(sess)
					return
				}

				if onTick != nil {
					onTick()
				}
			}
		}
	}()
}
