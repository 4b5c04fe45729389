package ws

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/defterly/chat-service/internal/attachment"
	"github.com/defterly/chat-service/internal/chat"
	"github.com/defterly/chat-service/internal/messaging"
	"github.com/defterly/chat-service/internal/metrics"
	"github.com/defterly/chat-service/internal/protocol"
	"github.com/defterly/chat-service/internal/ratelimit"
	"github.com/defterly/chat-service/internal/storage"
)

// opTimeout bounds each downstream call (persistence, object storage) made
// while processing a single frame.
const opTimeout = 5 * time.Second

// Notifier hands offline-notification events to the out-of-process
// notifier service. *messaging.NATSClient satisfies it.
type Notifier interface {
	PublishNotify(event messaging.NotifyEvent) error
}

// RateLimiter throttles per-user event rates. *ratelimit.Limiter satisfies
// it.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// PresenceTracker records which participants hold live connections.
// *presence.Store satisfies it.
type PresenceTracker interface {
	MarkOnline(ctx context.Context, roomID, userID, sessionID string) error
	MarkOffline(ctx context.Context, roomID, userID string) error
	Refresh(ctx context.Context, roomID, userID string) error
	IsOnline(ctx context.Context, roomID, userID string) (bool, error)
}

// Router classifies each inbound frame and drives persistence, attachment
// ingestion, and room broadcast. Classification is stateless per event; all
// session state lives on the Session itself.
//
// Every failure mode here is local: a bad frame is dropped with a log line
// and the connection keeps serving subsequent frames.
type Router struct {
	registry    *RoomRegistry
	messages    chat.MessageStore
	attachments *attachment.Validator
	objects     storage.ObjectStore

	// Optional collaborators; each is skipped when nil.
	limiter  RateLimiter
	notifier Notifier
	presence PresenceTracker
}

// NewRouter creates a message router. limiter, notifier, and presence may
// be nil, disabling throttling and offline notifications respectively.
func NewRouter(registry *RoomRegistry, messages chat.MessageStore, attachments *attachment.Validator, objects storage.ObjectStore) *Router {
	return &Router{
		registry:    registry,
		messages:    messages,
		attachments: attachments,
		objects:     objects,
	}
}

// SetRateLimiter enables per-user event throttling.
func (rt *Router) SetRateLimiter(l RateLimiter) { rt.limiter = l }

// SetNotifier enables offline-notification publishing.
func (rt *Router) SetNotifier(n Notifier) { rt.notifier = n }

// SetPresence enables presence lookups for offline-notification decisions.
func (rt *Router) SetPresence(p PresenceTracker) { rt.presence = p }

// Route processes one decoded inbound frame from sess. Frames are handled
// strictly in arrival order: the gateway calls Route from the session's
// single read goroutine.
func (rt *Router) Route(sess *Session, data []byte) {
	evtType, evt, err := protocol.ParseClientEvent(data)
	if err != nil {
		log.Printf("ws: drop frame session=%s: %v", sess.ID, err)
		metrics.EventsTotal.WithLabelValues(evtType, "dropped").Inc()
		return
	}

	switch e := evt.(type) {
	case protocol.PingEvent:
		rt.handlePing(sess)
	case protocol.PongEvent:
		// Activity already recorded by the read loop; nothing to answer.
		log.Printf("ws: pong received session=%s", sess.ID)
		metrics.EventsTotal.WithLabelValues(protocol.TypePong, "ok").Inc()
	case protocol.MessageEvent:
		rt.handleText(sess, e)
	case protocol.FileEvent:
		rt.handleFile(sess, e)
	}
}

// handlePing replies with a pong to the sender only.
func (rt *Router) handlePing(sess *Session) {
	pong, err := protocol.NewServerEvent(protocol.TypePong, protocol.ServerPongEvent{})
	if err != nil {
		log.Printf("ws: build pong session=%s: %v", sess.ID, err)
		return
	}
	if err := sess.Conn.WriteMessage(pong); err != nil {
		log.Printf("ws: send pong session=%s: %v", sess.ID, err)
	}
	metrics.EventsTotal.WithLabelValues(protocol.TypePing, "ok").Inc()
}

// handleText validates, persists, and fans out a text message. The chat
// event goes to everyone in the room, sender included, as the authoritative
// echo; the notification event goes to everyone except the sender.
func (rt *Router) handleText(sess *Session, e protocol.MessageEvent) {
	if err := chat.ValidateContent(e.Data.Content); err != nil {
		log.Printf("ws: drop message session=%s: %v", sess.ID, err)
		metrics.EventsTotal.WithLabelValues(protocol.TypeMessage, "dropped").Inc()
		return
	}

	// A payload addressed to a different room than the one this session
	// joined is dropped outright.
	if e.Data.RoomID != "" && e.Data.RoomID != sess.Room.ID {
		log.Printf("ws: drop message session=%s: room mismatch %q != %q",
			sess.ID, e.Data.RoomID, sess.Room.ID)
		metrics.EventsTotal.WithLabelValues(protocol.TypeMessage, "dropped").Inc()
		return
	}

	if !rt.allow(sess, ratelimit.RuleMessage) {
		metrics.EventsTotal.WithLabelValues(protocol.TypeMessage, "rate_limited").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(sess.Context(), opTimeout)
	defer cancel()

	msg, err := rt.messages.CreateMessage(ctx, chat.CreateMessageParams{
		RoomID:   sess.Room.ID,
		SenderID: sess.User.ID,
		Kind:     chat.KindText,
		Content:  e.Data.Content,
	})
	if err != nil {
		log.Printf("ws: persist message session=%s: %v", sess.ID, err)
		metrics.EventsTotal.WithLabelValues(protocol.TypeMessage, "error").Inc()
		return
	}

	rt.broadcastMessage(sess, msg, nil)
	rt.broadcastNotification(sess, msg.Content)
	rt.notifyOffline(sess, msg.Content, chat.KindText)
	metrics.EventsTotal.WithLabelValues(protocol.TypeMessage, "ok").Inc()
}

// handleFile decodes, validates, stores, and persists a file attachment,
// then fans the resulting message out to the whole room, sender included.
func (rt *Router) handleFile(sess *Session, e protocol.FileEvent) {
	if e.File.Name == "" || e.File.Content == "" {
		log.Printf("ws: drop file session=%s: missing name or content", sess.ID)
		metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "dropped").Inc()
		return
	}

	contentType, payload, err := attachment.DecodeDataURI(e.File.Content)
	if err != nil {
		log.Printf("ws: drop file session=%s: %v", sess.ID, err)
		metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "dropped").Inc()
		return
	}

	if !rt.allow(sess, ratelimit.RuleFile) {
		metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "rate_limited").Inc()
		return
	}

	// Policy check strictly precedes the storage write.
	key, err := rt.attachments.Validate(payload, contentType, e.File.Name)
	if err != nil {
		log.Printf("ws: reject file session=%s name=%q: %v", sess.ID, e.File.Name, err)
		metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "dropped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(sess.Context(), opTimeout)
	defer cancel()

	url, err := rt.objects.Put(ctx, key, payload, contentType)
	if err != nil {
		log.Printf("ws: store file session=%s key=%s: %v", sess.ID, key, err)
		metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "error").Inc()
		return
	}

	attach := &chat.Attachment{
		URL:         url,
		Name:        e.File.Name,
		ContentType: contentType,
		Size:        int64(len(payload)),
	}
	msg, err := rt.messages.CreateMessage(ctx, chat.CreateMessageParams{
		RoomID:     sess.Room.ID,
		SenderID:   sess.User.ID,
		Kind:       chat.KindFile,
		Content:    fmt.Sprintf("%s sent a file: %s", sess.User.Email, e.File.Name),
		Attachment: attach,
	})
	if err != nil {
		log.Printf("ws: persist file message session=%s: %v", sess.ID, err)
		metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "error").Inc()
		return
	}

	rt.broadcastMessage(sess, msg, attach)
	rt.notifyOffline(sess, e.File.Name, chat.KindFile)
	metrics.AttachmentBytes.Observe(float64(len(payload)))
	metrics.EventsTotal.WithLabelValues(protocol.TypeFile, "ok").Inc()
}

// allow runs the rate limiter when one is configured. Limited events are
// dropped silently, consistent with the protocol's no-NACK stance.
func (rt *Router) allow(sess *Session, rule ratelimit.Rule) bool {
	if rt.limiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(sess.Context(), opTimeout)
	defer cancel()

	allowed, _ := rt.limiter.Allow(ctx, sess.User.ID, rule)
	if !allowed {
		log.Printf("ws: rate limited session=%s user=%s", sess.ID, sess.User.ID)
	}
	return allowed
}

// broadcastMessage sends the authoritative message event to every session
// in the room, the sender included.
func (rt *Router) broadcastMessage(sess *Session, msg *chat.Message, attach *chat.Attachment) {
	data := protocol.ChatMessageData{
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    senderInfo(sess.User),
		Timestamp: msg.CreatedAt.Format(time.RFC3339),
		RoomID:    msg.RoomID,
	}
	if attach != nil {
		data.File = &protocol.AttachmentInfo{
			URL:  attach.URL,
			Name: attach.Name,
			Type: attach.ContentType,
			Size: attach.Size,
		}
	}

	payload, err := protocol.NewServerEvent(protocol.TypeMessage, protocol.ChatMessageEvent{Data: data})
	if err != nil {
		log.Printf("ws: build message event session=%s: %v", sess.ID, err)
		return
	}
	rt.registry.Broadcast(sess.Room.ID, payload)
}

// broadcastNotification alerts the other party; the author is excluded so
// they are never re-notified of their own message.
func (rt *Router) broadcastNotification(sess *Session, content string) {
	payload, err := protocol.NewServerEvent(protocol.TypeNotification, protocol.NotificationEvent{
		Data: protocol.NotificationData{
			Message: content,
			RoomID:  sess.Room.ID,
			Sender:  senderInfo(sess.User),
		},
	})
	if err != nil {
		log.Printf("ws: build notification session=%s: %v", sess.ID, err)
		return
	}
	rt.registry.Broadcast(sess.Room.ID, payload, sess)
}

// notifyOffline publishes an out-of-band notify event when the counterpart
// has no live connection to the room. Requires both a presence tracker and
// a notifier; otherwise it is a no-op.
func (rt *Router) notifyOffline(sess *Session, preview, kind string) {
	if rt.presence == nil || rt.notifier == nil {
		return
	}

	counterpart := sess.Room.Counterpart(sess.User.ID)
	if counterpart == "" {
		return
	}

	ctx, cancel := context.WithTimeout(sess.Context(), opTimeout)
	defer cancel()

	online, err := rt.presence.IsOnline(ctx, sess.Room.ID, counterpart)
	if err != nil {
		log.Printf("ws: presence lookup room=%s user=%s: %v", sess.Room.ID, counterpart, err)
		return
	}
	if online {
		return
	}

	err = rt.notifier.PublishNotify(messaging.NotifyEvent{
		RoomID:      sess.Room.ID,
		RecipientID: counterpart,
		SenderEmail: sess.User.Email,
		Preview:     preview,
		Kind:        kind,
		Ts:          time.Now().Unix(),
	})
	if err != nil {
		log.Printf("ws: publish notify room=%s: %v", sess.Room.ID, err)
	}
}

func senderInfo(user *chat.User) protocol.UserInfo {
	return protocol.UserInfo{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}
}
