package trialapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// RegisterHTTPHandlers registers all trial-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	POST <prefix>/trial/propose/{recipient_id}/
//	GET  <prefix>/trial/
//	POST <prefix>/trial/respond/{id}/
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.Handle("POST "+prefix+"trial/propose/{recipient_id}/{$}", c.issuer.RequireFunc(c.handlePropose))
	mux.Handle("GET "+prefix+"trial/{$}", c.issuer.RequireFunc(c.handleList))
	mux.Handle("POST "+prefix+"trial/respond/{id}/{$}", c.issuer.RequireFunc(c.handleRespond))
}

// ----------------------------------------------------------------------------
// POST /api/core/trial/propose/{recipient_id}/
// ----------------------------------------------------------------------------

type proposeRequest struct {
	Message string `json:"message"`
}

func (c *Component) handlePropose(w http.ResponseWriter, r *http.Request) {
	proposerID := auth.UserID(r.Context())
	recipientID, ok := api.PathID(r, "recipient_id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if recipientID == proposerID {
		api.WriteError(w, http.StatusBadRequest, "Cannot propose trial to yourself")
		return
	}

	var req proposeRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	message := c.policy.Sanitize(strings.TrimSpace(req.Message))
	if len(message) > c.config.MaxMessageLength {
		api.WriteFieldErrors(w, api.FieldErrors{
			"message": {"Ensure this field has no more than " + strconv.Itoa(c.config.MaxMessageLength) + " characters."},
		})
		return
	}

	trial, notif, err := c.store.ProposeTrial(r.Context(), proposerID, recipientID, message)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "User not found")
		return
	}
	c.notifier.Push(notif)

	c.logger.Info("Trial proposed", "trial_id", trial.ID, "proposer_id", proposerID, "recipient_id", recipientID)
	api.WriteJSON(w, http.StatusCreated, trial)
}

// ----------------------------------------------------------------------------
// GET /api/core/trial/
// ----------------------------------------------------------------------------

// handleList returns proposals the caller sent or received, newest first.
func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.ListTrials(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}

// ----------------------------------------------------------------------------
// POST /api/core/trial/respond/{id}/
// ----------------------------------------------------------------------------

type respondRequest struct {
	Action string `json:"action"`
}

// handleRespond accepts or declines a pending proposal addressed to the
// caller. Accepting notifies the proposer.
func (c *Component) handleRespond(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, "Proposal not found")
		return
	}

	var req respondRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var accept bool
	switch req.Action {
	case "accept":
		accept = true
	case "decline":
	default:
		api.WriteError(w, http.StatusBadRequest, "Invalid action. Use accept or decline")
		return
	}

	trial, notif, err := c.store.RespondTrial(r.Context(), id, auth.UserID(r.Context()), accept)
	if errors.Is(err, storage.ErrInvalidState) {
		api.WriteError(w, http.StatusBadRequest, "Proposal has already been answered")
		return
	}
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "Proposal not found")
		return
	}
	c.notifier.Push(notif)

	c.logger.Info("Trial answered", "trial_id", trial.ID, "status", trial.Status)
	api.WriteJSON(w, http.StatusOK, trial)
}
