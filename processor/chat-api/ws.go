package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Event types sent to chat sockets.
const (
	EventChatMessage = "chat_message"
	EventError       = "error"
)

// ChatEvent is broadcast to every socket in a room when a message is sent.
type ChatEvent struct {
	Type       string    `json:"type"`
	ID         int64     `json:"id"`
	Message    string    `json:"message"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorEvent reports a rejected inbound frame to its sender only.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type inbound struct {
	Message string `json:"message"`
}

// ----------------------------------------------------------------------------
// GET /ws/chat/{receiver_id}/?token=<access>
// ----------------------------------------------------------------------------

// handleSocket joins the caller to the room shared with {receiver_id}.
// Unauthenticated requests are refused before the upgrade.
func (c *Component) handleSocket(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserID(r.Context())
	receiverID, ok := c.otherUser(w, r)
	if !ok {
		return
	}
	if receiverID == senderID {
		api.WriteError(w, http.StatusBadRequest, "Cannot chat with yourself")
		return
	}

	ctx, cancel := c.Bind(r.Context())
	defer cancel()

	sock, err := realtime.Upgrade(c.upgrader, w, r, c.logger)
	if err != nil {
		c.logger.Debug("Chat upgrade failed", "user_id", senderID, "error", err)
		return
	}
	defer sock.Close()

	if c.metrics != nil {
		gauge := c.metrics.WebSocketClients.WithLabelValues("chat")
		gauge.Inc()
		defer gauge.Dec()
	}

	room := realtime.ChatRoom(senderID, receiverID)
	unsub, err := sock.Forward(c.hub, realtime.ChatSubject(room))
	if err != nil {
		c.logger.Error("Failed to join chat room", "room", room, "error", err)
		return
	}
	defer unsub()

	c.logger.Debug("Chat socket connected", "room", room, "user_id", senderID)
	sock.Run(ctx, func(data []byte) {
		c.receive(ctx, sock, room, senderID, receiverID, data)
	})
	c.logger.Debug("Chat socket closed", "room", room, "user_id", senderID)
}

// receive persists one inbound frame and broadcasts it to the room.
func (c *Component) receive(ctx context.Context, sock *realtime.Socket, room string, senderID, receiverID int64, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.reject(sock, "Invalid message format")
		return
	}
	content := strings.TrimSpace(c.policy.Sanitize(in.Message))
	switch {
	case content == "":
		c.reject(sock, "Message cannot be empty")
		return
	case len(content) > c.config.MaxMessageLength:
		c.reject(sock, "Message is too long")
		return
	}

	msg := &storage.Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
	notif, err := c.store.SendMessage(ctx, msg)
	if err != nil {
		c.logger.Error("Failed to save chat message", "room", room, "sender_id", senderID, "error", err)
		c.reject(sock, "Message could not be sent")
		return
	}
	if c.metrics != nil {
		c.metrics.ChatMessages.Inc()
	}

	event := ChatEvent{
		Type:       EventChatMessage,
		ID:         msg.ID,
		Message:    msg.Content,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Timestamp:  msg.Timestamp,
	}
	if err := c.hub.Publish(realtime.ChatSubject(room), event); err != nil {
		c.logger.Warn("Failed to broadcast chat message", "room", room, "message_id", msg.ID, "error", err)
	}
	c.notifier.Push(notif)
}

func (c *Component) reject(sock *realtime.Socket, msg string) {
	data, _ := json.Marshal(ErrorEvent{Type: EventError, Error: msg})
	_ = sock.Send(data)
}
