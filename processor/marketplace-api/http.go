package marketplaceapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// RegisterHTTPHandlers registers all marketplace-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	GET  <prefix>/experts/
//	GET  <prefix>/experts/{id}/
//	GET  <prefix>/experts/{id}/contact/
//	POST <prefix>/bookings/create/{expert_profile_id}/
//	GET  <prefix>/bookings/
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.Handle("GET "+prefix+"experts/{$}", c.issuer.RequireFunc(c.handleListExperts))
	mux.Handle("GET "+prefix+"experts/{id}/{$}", c.issuer.RequireFunc(c.handleGetExpert))
	mux.Handle("GET "+prefix+"experts/{id}/contact/{$}", c.issuer.RequireFunc(c.handleContact))
	mux.Handle("POST "+prefix+"bookings/create/{expert_profile_id}/{$}", c.issuer.RequireFunc(c.handleBook))
	mux.Handle("GET "+prefix+"bookings/{$}", c.issuer.RequireFunc(c.handleListBookings))
}

const expertNotFound = "Expert not found"

// ----------------------------------------------------------------------------
// GET /api/core/experts/
// ----------------------------------------------------------------------------

// handleListExperts lists experts, optionally filtered by specialization
// substring and vetting status.
func (c *Component) handleListExperts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ExpertFilter{Specialization: strings.TrimSpace(q.Get("specialization"))}
	if v := q.Get("vetted"); v != "" {
		vetted, err := strconv.ParseBool(v)
		if err != nil {
			api.WriteFieldErrors(w, api.FieldErrors{"vetted": {"Must be true or false."}})
			return
		}
		filter.Vetted = &vetted
	}

	experts, err := c.store.ListExperts(r.Context(), filter)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, experts)
}

// ----------------------------------------------------------------------------
// GET /api/core/experts/{id}/
// ----------------------------------------------------------------------------

func (c *Component) handleGetExpert(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, expertNotFound)
		return
	}
	expert, err := c.store.GetExpert(r.Context(), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, expertNotFound)
		return
	}
	api.WriteJSON(w, http.StatusOK, expert)
}

// ----------------------------------------------------------------------------
// GET /api/core/experts/{id}/contact/
// ----------------------------------------------------------------------------

// contactResponse carries the details an intro session needs.
type contactResponse struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	Specialization string `json:"specialization"`
	Bio            string `json:"bio"`
	HourlyRate     string `json:"hourly_rate"`
}

func (c *Component) handleContact(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, expertNotFound)
		return
	}
	expert, err := c.store.GetExpert(r.Context(), id)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, expertNotFound)
		return
	}
	user, err := c.store.GetUser(r.Context(), expert.UserID)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, expertNotFound)
		return
	}

	phone := user.PhoneNumber
	if phone == "" {
		phone = "Not shared"
	}
	api.WriteJSON(w, http.StatusOK, contactResponse{
		Username:       user.Username,
		Email:          user.Email,
		PhoneNumber:    phone,
		Specialization: expert.Specialization,
		Bio:            expert.Bio,
		HourlyRate:     expert.HourlyRate.StringFixed(2),
	})
}

// ----------------------------------------------------------------------------
// POST /api/core/bookings/create/{expert_profile_id}/
// ----------------------------------------------------------------------------

type bookRequest struct {
	Amount decimal.NullDecimal `json:"amount"`
	Notes  string              `json:"notes"`
}

// handleBook books a session with an expert. The first session between a
// client and an expert is a free intro unless an amount is given.
func (c *Component) handleBook(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := api.PathID(r, "expert_profile_id")
	if !ok {
		api.WriteError(w, http.StatusNotFound, expertNotFound)
		return
	}

	var req bookRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	amount := decimal.Zero
	if req.Amount.Valid {
		amount = req.Amount.Decimal
	}
	if amount.IsNegative() {
		errs.Add("amount", "Ensure this value is greater than or equal to 0.")
	}
	errs.CheckMoney("amount", amount)
	notes := c.policy.Sanitize(strings.TrimSpace(req.Notes))
	if len(notes) > c.config.MaxNotesLength {
		errs.Add("notes", "Ensure this field has no more than "+strconv.Itoa(c.config.MaxNotesLength)+" characters.")
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	booking, notif, err := c.store.CreateBooking(r.Context(), id, claims.UserID, amount, notes)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, expertNotFound)
		return
	}
	c.notifier.Push(notif)

	c.logger.Info("Session booked",
		"booking_id", booking.ID,
		"expert_id", booking.ExpertID,
		"client_id", booking.ClientID,
		"free_intro", booking.IsFreeIntro)
	api.WriteJSON(w, http.StatusCreated, booking)
}

// ----------------------------------------------------------------------------
// GET /api/core/bookings/
// ----------------------------------------------------------------------------

// handleListBookings lists the caller's bookings as client or expert.
func (c *Component) handleListBookings(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	list, err := c.store.ListBookings(r.Context(), claims.UserID)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}
