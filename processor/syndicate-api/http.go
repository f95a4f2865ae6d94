package syndicateapi

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// RegisterHTTPHandlers registers all syndicate-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	GET  <prefix>/syndicates/
//	POST <prefix>/syndicates/
//	GET  <prefix>/syndicates/{id}/
//	POST <prefix>/syndicates/{id}/invest/
//	GET  <prefix>/syndicates/{id}/investments/
//	GET  <prefix>/statutes/{id}/
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.Handle("GET "+prefix+"syndicates/{$}", c.issuer.RequireFunc(c.handleList))
	mux.Handle("POST "+prefix+"syndicates/{$}", c.issuer.RequireFunc(c.handleCreate))
	mux.Handle("GET "+prefix+"syndicates/{id}/{$}", c.issuer.RequireFunc(c.handleGet))
	mux.Handle("POST "+prefix+"syndicates/{id}/invest/{$}", c.issuer.RequireFunc(c.handleInvest))
	mux.Handle("GET "+prefix+"syndicates/{id}/investments/{$}", c.issuer.RequireFunc(c.handleInvestments))
	mux.Handle("GET "+prefix+"statutes/{id}/{$}", c.issuer.RequireFunc(c.handleStatute))
}

// syndicateView adds the derived funding progress to a syndicate.
type syndicateView struct {
	*storage.Syndicate
	Progress float64 `json:"progress"`
}

func viewOf(sy *storage.Syndicate) syndicateView {
	return syndicateView{Syndicate: sy, Progress: sy.Progress()}
}

const syndicateNotFound = "Syndicate not found"

// activeSyndicate loads the {id} syndicate, writing a 404 when it is
// missing or closed.
func (c *Component) activeSyndicate(w http.ResponseWriter, r *http.Request) (*storage.Syndicate, bool) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, syndicateNotFound)
		return nil, false
	}
	sy, err := c.store.GetSyndicate(r.Context(), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, syndicateNotFound)
		return nil, false
	}
	if !sy.IsActive {
		api.WriteError(w, http.StatusNotFound, syndicateNotFound)
		return nil, false
	}
	return sy, true
}

// ----------------------------------------------------------------------------
// GET /api/core/syndicates/
// ----------------------------------------------------------------------------

// handleList returns active syndicates, newest first.
func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.ListSyndicates(r.Context())
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	views := make([]syndicateView, 0, len(list))
	for _, sy := range list {
		views = append(views, viewOf(sy))
	}
	api.WriteJSON(w, http.StatusOK, views)
}

// ----------------------------------------------------------------------------
// GET /api/core/syndicates/{id}/
// ----------------------------------------------------------------------------

// handleGet returns one active syndicate.
func (c *Component) handleGet(w http.ResponseWriter, r *http.Request) {
	sy, ok := c.activeSyndicate(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(sy))
}

// ----------------------------------------------------------------------------
// POST /api/core/syndicates/
// ----------------------------------------------------------------------------

type createRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	FundingGoal  decimal.Decimal `json:"funding_goal"`
	InterestTags []string        `json:"interest_tags"`
}

// handleCreate opens a syndicate led by the calling founder.
func (c *Component) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if storage.Role(claims.Role) != storage.RoleFounder {
		api.WriteError(w, http.StatusForbidden, "Only founders can create syndicates.")
		return
	}

	var req createRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		errs.Add("title", "This field is required.")
	case len(title) > 200:
		errs.Add("title", "Ensure this field has no more than 200 characters.")
	}
	description := c.policy.Sanitize(strings.TrimSpace(req.Description))
	if description == "" {
		errs.Add("description", "This field is required.")
	}
	if !req.FundingGoal.IsPositive() {
		errs.Add("funding_goal", "Funding goal must be greater than zero.")
	}
	errs.CheckMoney("funding_goal", req.FundingGoal)
	if title != "" {
		exists, err := c.store.SyndicateExists(r.Context(), title, claims.UserID)
		if err != nil {
			api.WriteStoreError(w, c.logger, err, "")
			return
		}
		if exists {
			errs.Add("title", "You already lead a syndicate with this title.")
		}
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	tags := req.InterestTags
	if tags == nil {
		tags = []string{}
	}
	sy := &storage.Syndicate{
		Title:          title,
		FounderID:      claims.UserID,
		Description:    description,
		FundingGoal:    req.FundingGoal,
		CurrentFunding: decimal.Zero,
		IsActive:       true,
		InterestTags:   tags,
	}
	if err := c.store.CreateSyndicate(r.Context(), sy); err != nil {
		api.WriteStoreError(w, c.logger, err, syndicateNotFound)
		return
	}

	c.logger.Info("Syndicate created", "syndicate_id", sy.ID, "founder_id", sy.FounderID, "goal", sy.FundingGoal.String())
	api.WriteJSON(w, http.StatusCreated, viewOf(sy))
}

// ----------------------------------------------------------------------------
// POST /api/core/syndicates/{id}/invest/
// ----------------------------------------------------------------------------

type investRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type investResponse struct {
	Investment *storage.Investment `json:"investment"`
	Syndicate  syndicateView       `json:"syndicate"`
}

// handleInvest commits the calling investor's capital and notifies the
// lead founder.
func (c *Component) handleInvest(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if storage.Role(claims.Role) != storage.RoleInvestor {
		api.WriteError(w, http.StatusForbidden, "Only investors can invest in syndicates.")
		return
	}
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, syndicateNotFound)
		return
	}

	var req investRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := api.FieldErrors{}
	if !req.Amount.IsPositive() {
		errs.Add("amount", "Amount must be greater than zero.")
	}
	errs.CheckMoney("amount", req.Amount)
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	inv, sy, notif, err := c.store.Invest(r.Context(), id, claims.UserID, req.Amount)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, syndicateNotFound)
		return
	}
	if c.metrics != nil {
		c.metrics.Investments.Inc()
	}
	c.notifier.Push(notif)

	c.logger.Info("Investment recorded",
		"syndicate_id", sy.ID,
		"investor_id", claims.UserID,
		"amount", inv.Amount.String(),
		"progress", sy.Progress())
	api.WriteJSON(w, http.StatusCreated, investResponse{Investment: inv, Syndicate: viewOf(sy)})
}

// ----------------------------------------------------------------------------
// GET /api/core/syndicates/{id}/investments/
// ----------------------------------------------------------------------------

// handleInvestments lists commitments to an active syndicate.
func (c *Component) handleInvestments(w http.ResponseWriter, r *http.Request) {
	sy, ok := c.activeSyndicate(w, r)
	if !ok {
		return
	}
	list, err := c.store.ListInvestments(r.Context(), sy.ID)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}

// ----------------------------------------------------------------------------
// GET /api/core/statutes/{id}/
// ----------------------------------------------------------------------------

// handleStatute renders the syndicate's Smart-Statute PDF. Closed
// syndicates still have a statute.
func (c *Component) handleStatute(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, syndicateNotFound)
		return
	}
	sy, err := c.store.GetSyndicate(r.Context(), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, syndicateNotFound)
		return
	}

	var buf bytes.Buffer
	if err := writeStatute(&buf, sy, c.config.StatuteTerms); err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="statute-`+strconv.FormatInt(sy.ID, 10)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
