package pulseapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// RegisterHTTPHandlers registers all pulse-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	GET    <prefix>/stats/
//	GET    <prefix>/snapshots/
//	POST   <prefix>/snapshots/
//	GET    <prefix>/snapshots/{id}/
//	PUT    <prefix>/snapshots/{id}/
//	PATCH  <prefix>/snapshots/{id}/
//	DELETE <prefix>/snapshots/{id}/
//	GET    <prefix>/snapshots/public/{user_id}/
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.HandleFunc("GET "+prefix+"stats/{$}", c.handleStats)
	mux.Handle("GET "+prefix+"snapshots/{$}", c.issuer.RequireFunc(c.handleListSnapshots))
	mux.Handle("POST "+prefix+"snapshots/{$}", c.issuer.RequireFunc(c.handleCreateSnapshot))
	mux.Handle("GET "+prefix+"snapshots/{id}/{$}", c.issuer.RequireFunc(c.handleGetSnapshot))
	mux.Handle("PUT "+prefix+"snapshots/{id}/{$}", c.issuer.RequireFunc(c.handleUpdateSnapshot))
	mux.Handle("PATCH "+prefix+"snapshots/{id}/{$}", c.issuer.RequireFunc(c.handleUpdateSnapshot))
	mux.Handle("DELETE "+prefix+"snapshots/{id}/{$}", c.issuer.RequireFunc(c.handleDeleteSnapshot))
	mux.Handle("GET "+prefix+"snapshots/public/{user_id}/{$}", c.issuer.RequireFunc(c.handlePublicSnapshots))
}

// ----------------------------------------------------------------------------
// GET /api/core/stats/
// ----------------------------------------------------------------------------

// Hotspot is one province's activity on the landing-page map.
type Hotspot struct {
	Province int    `json:"province"`
	Name     string `json:"name"`
	Activity int    `json:"activity"`
}

// Stats are the public ecosystem headline numbers.
type Stats struct {
	TotalStartups   int       `json:"total_startups"`
	TotalInvestment string    `json:"total_investment"`
	ActiveMatches   int       `json:"active_matches"`
	Hotspots        []Hotspot `json:"hotspots"`
}

// computeStats derives the headline numbers from membership counts.
func (c *Component) computeStats(counts *storage.UserCounts) Stats {
	investors := counts.ByRole[storage.RoleInvestor]
	stats := Stats{
		TotalStartups:   counts.ByRole[storage.RoleFounder] + 42,
		TotalInvestment: fmt.Sprintf("%.1fM", float64(investors)*0.5+2.5),
		ActiveMatches:   counts.Total*2 + 15,
		Hotspots:        make([]Hotspot, 0, len(storage.Provinces)),
	}
	for i, name := range storage.Provinces {
		stats.Hotspots = append(stats.Hotspots, Hotspot{
			Province: i + 1,
			Name:     name,
			Activity: c.config.HotspotBaseline[i] + counts.ByProvince[name],
		})
	}
	return stats
}

// handleStats returns public ecosystem stats. No authentication required.
func (c *Component) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := c.store.CountUsers(r.Context())
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, c.computeStats(counts))
}

// ----------------------------------------------------------------------------
// /api/core/snapshots/
// ----------------------------------------------------------------------------

// snapshotRequest carries snapshot fields. Pointers distinguish absent
// fields so PATCH only touches what was sent.
type snapshotRequest struct {
	WeekEnding *storage.DateOnly `json:"week_ending"`
	Revenue    *decimal.Decimal  `json:"revenue"`
	Users      *int              `json:"users"`
	Expenses   *decimal.Decimal  `json:"expenses"`
	IsPublic   *bool             `json:"is_public"`
}

// apply validates req and copies it onto k. partial skips the required
// check on week_ending.
func (req *snapshotRequest) apply(k *storage.KPISnapshot, partial bool) api.FieldErrors {
	errs := api.FieldErrors{}
	if req.WeekEnding != nil {
		k.WeekEnding = *req.WeekEnding
	} else if !partial {
		errs.Add("week_ending", "This field is required.")
	}
	if req.Revenue != nil {
		errs.CheckMoney("revenue", *req.Revenue)
		k.Revenue = *req.Revenue
	}
	if req.Expenses != nil {
		errs.CheckMoney("expenses", *req.Expenses)
		k.Expenses = *req.Expenses
	}
	if req.Users != nil {
		k.Users = *req.Users
	}
	if req.IsPublic != nil {
		k.IsPublic = *req.IsPublic
	}
	return errs
}

const snapshotNotFound = "Snapshot not found"

// handleListSnapshots lists the caller's snapshots.
func (c *Component) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.ListSnapshots(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}

// handleCreateSnapshot records a weekly pulse and awards karma for it.
func (c *Component) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	k := &storage.KPISnapshot{
		UserID:   auth.UserID(r.Context()),
		Revenue:  decimal.Zero,
		Expenses: decimal.Zero,
	}
	if errs := req.apply(k, false); !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	if err := c.store.CreateSnapshot(r.Context(), k, c.award); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			api.WriteFieldErrors(w, api.FieldErrors{
				"non_field_errors": {"The fields user, week_ending must make a unique set."},
			})
			return
		}
		api.WriteStoreError(w, c.logger, err, snapshotNotFound)
		return
	}
	if c.metrics != nil {
		c.metrics.SnapshotsRecorded.Inc()
	}

	c.logger.Info("KPI snapshot recorded", "user_id", k.UserID, "week_ending", k.WeekEnding.String(), "award", c.award)
	api.WriteJSON(w, http.StatusCreated, k)
}

// handleGetSnapshot returns one of the caller's snapshots.
func (c *Component) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, snapshotNotFound)
		return
	}
	k, err := c.store.GetSnapshot(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, snapshotNotFound)
		return
	}
	api.WriteJSON(w, http.StatusOK, k)
}

// handleUpdateSnapshot applies a full (PUT) or partial (PATCH) update.
func (c *Component) handleUpdateSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, snapshotNotFound)
		return
	}
	k, err := c.store.GetSnapshot(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, snapshotNotFound)
		return
	}

	var req snapshotRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := req.apply(k, r.Method == http.MethodPatch); !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	if err := c.store.UpdateSnapshot(r.Context(), k); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			api.WriteFieldErrors(w, api.FieldErrors{
				"non_field_errors": {"The fields user, week_ending must make a unique set."},
			})
			return
		}
		api.WriteStoreError(w, c.logger, err, snapshotNotFound)
		return
	}
	api.WriteJSON(w, http.StatusOK, k)
}

// handleDeleteSnapshot removes one of the caller's snapshots.
func (c *Component) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, snapshotNotFound)
		return
	}
	if err := c.store.DeleteSnapshot(r.Context(), auth.UserID(r.Context()), id); err != nil {
		api.WriteStoreError(w, c.logger, err, snapshotNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublicSnapshots lists a member's public snapshots.
func (c *Component) handlePublicSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.PathID(r, "user_id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if _, err := c.store.GetUser(r.Context(), userID); err != nil {
		api.WriteStoreError(w, c.logger, err, "User not found")
		return
	}
	list, err := c.store.ListPublicSnapshots(r.Context(), userID)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}
