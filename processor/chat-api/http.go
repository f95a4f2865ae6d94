package chatapi

import (
	"net/http"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
)

// RegisterHTTPHandlers registers all chat-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	GET  <prefix>/chat/history/{receiver_id}/
//	POST <prefix>/chat/mark-as-read/{receiver_id}/
//	GET  /<websocket_prefix>/chat/{receiver_id}/?token=<access>
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.Handle("GET "+prefix+"chat/history/{receiver_id}/{$}", c.issuer.RequireFunc(c.handleHistory))
	mux.Handle("POST "+prefix+"chat/mark-as-read/{receiver_id}/{$}", c.issuer.RequireFunc(c.handleMarkAsRead))
	mux.Handle("GET "+api.Prefix(c.config.WebSocketPrefix)+"chat/{receiver_id}/{$}", c.issuer.RequireFunc(c.handleSocket))
}

const userNotFound = "User not found"

// otherUser resolves {receiver_id} to an existing user, writing a 404 when
// there is none.
func (c *Component) otherUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := api.PathID(r, "receiver_id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, userNotFound)
		return 0, false
	}
	if _, err := c.store.GetUser(r.Context(), id); err != nil {
		api.WriteStoreError(w, c.logger, err, userNotFound)
		return 0, false
	}
	return id, true
}

// ----------------------------------------------------------------------------
// GET /api/core/chat/history/{receiver_id}/
// ----------------------------------------------------------------------------

// handleHistory returns the conversation between the caller and another
// user, oldest first.
func (c *Component) handleHistory(w http.ResponseWriter, r *http.Request) {
	other, ok := c.otherUser(w, r)
	if !ok {
		return
	}
	msgs, err := c.store.Conversation(r.Context(), auth.UserID(r.Context()), other)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, msgs)
}

// ----------------------------------------------------------------------------
// POST /api/core/chat/mark-as-read/{receiver_id}/
// ----------------------------------------------------------------------------

type markReadResponse struct {
	OK      bool  `json:"ok"`
	Updated int64 `json:"updated"`
}

// handleMarkAsRead marks the other user's messages to the caller read.
func (c *Component) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	other, ok := c.otherUser(w, r)
	if !ok {
		return
	}
	n, err := c.store.MarkConversationRead(r.Context(), auth.UserID(r.Context()), other)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, markReadResponse{OK: true, Updated: n})
}
