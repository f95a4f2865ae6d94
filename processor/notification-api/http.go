package notificationapi

import (
	"encoding/json"
	"net/http"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/realtime"
)

// RegisterHTTPHandlers registers all notification-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	GET  <prefix>/notifications/
//	GET  <prefix>/notifications/unread-count/
//	POST <prefix>/notifications/{id}/read/
//	POST <prefix>/notifications/read-all/
//	GET  /<websocket_prefix>/notifications/?token=<access>
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.Handle("GET "+prefix+"notifications/{$}", c.issuer.RequireFunc(c.handleList))
	mux.Handle("GET "+prefix+"notifications/unread-count/{$}", c.issuer.RequireFunc(c.handleUnreadCount))
	mux.Handle("POST "+prefix+"notifications/{id}/read/{$}", c.issuer.RequireFunc(c.handleMarkRead))
	mux.Handle("POST "+prefix+"notifications/read-all/{$}", c.issuer.RequireFunc(c.handleMarkAllRead))
	mux.Handle("GET "+api.Prefix(c.config.WebSocketPrefix)+"notifications/{$}", c.issuer.RequireFunc(c.handleSocket))
}

// ----------------------------------------------------------------------------
// GET /api/core/notifications/
// ----------------------------------------------------------------------------

// handleList returns the caller's latest notifications, newest first.
func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.ListNotifications(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}

// ----------------------------------------------------------------------------
// GET /api/core/notifications/unread-count/
// ----------------------------------------------------------------------------

// UnreadCount is the unread-count body and the first frame of the live feed.
type UnreadCount struct {
	Type  string `json:"type,omitempty"`
	Count int    `json:"count"`
}

// EventUnreadCount tags the unread count frame on the live feed.
const EventUnreadCount = "unread_count"

func (c *Component) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := c.store.UnreadCount(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, UnreadCount{Count: n})
}

// ----------------------------------------------------------------------------
// POST /api/core/notifications/{id}/read/
// ----------------------------------------------------------------------------

// handleMarkRead marks one of the caller's notifications read. Another
// user's notification is reported as not found.
func (c *Component) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	n, err := c.store.MarkNotificationRead(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "Not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, n)
}

// ----------------------------------------------------------------------------
// POST /api/core/notifications/read-all/
// ----------------------------------------------------------------------------

func (c *Component) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	n, err := c.store.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	c.logger.Debug("Notifications marked read", "user_id", userID, "updated", n)
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ----------------------------------------------------------------------------
// GET /ws/notifications/?token=<access>
// ----------------------------------------------------------------------------

// handleSocket streams the caller's new notifications. The first frame is
// the current unread count. The subscription is opened before the count is
// read so a notification created in between is not lost.
func (c *Component) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	ctx, cancel := c.Bind(r.Context())
	defer cancel()

	sock, err := realtime.Upgrade(c.upgrader, w, r, c.logger)
	if err != nil {
		c.logger.Debug("Notification upgrade failed", "user_id", userID, "error", err)
		return
	}
	defer sock.Close()

	if c.metrics != nil {
		gauge := c.metrics.WebSocketClients.WithLabelValues("notifications")
		gauge.Inc()
		defer gauge.Dec()
	}

	unsub, err := sock.Forward(c.hub, realtime.NotifySubject(userID))
	if err != nil {
		c.logger.Error("Failed to subscribe to notifications", "user_id", userID, "error", err)
		return
	}
	defer unsub()

	unread, err := c.store.UnreadCount(ctx, userID)
	if err != nil {
		c.logger.Error("Failed to count unread notifications", "user_id", userID, "error", err)
		return
	}
	first, _ := json.Marshal(UnreadCount{Type: EventUnreadCount, Count: unread})
	sock.Greet(first)

	// Inbound frames are ignored; reading keeps the connection alive.
	sock.Run(ctx, func([]byte) {})
}
