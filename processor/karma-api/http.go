package karmaapi

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// RegisterHTTPHandlers registers all karma-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/core").
// Handlers are registered as:
//
//	GET  <prefix>/karma/balance/
//	GET  <prefix>/karma/history/
//	GET  <prefix>/redeem/offers/
//	POST <prefix>/redeem/{offer_id}/
//	GET  <prefix>/redeem/history/
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.Handle("GET "+prefix+"karma/balance/{$}", c.issuer.RequireFunc(c.handleBalance))
	mux.Handle("GET "+prefix+"karma/history/{$}", c.issuer.RequireFunc(c.handlePointsHistory))
	mux.Handle("GET "+prefix+"redeem/offers/{$}", c.issuer.RequireFunc(c.handleOffers))
	mux.Handle("POST "+prefix+"redeem/{offer_id}/{$}", c.issuer.RequireFunc(c.handleRedeem))
	mux.Handle("GET "+prefix+"redeem/history/{$}", c.issuer.RequireFunc(c.handleRedemptionHistory))
}

// Redemption outcomes recorded in metrics.
const (
	outcomeRedeemed     = "redeemed"
	outcomeInsufficient = "insufficient"
	outcomeNotFound     = "not_found"
	outcomeError        = "error"
)

// ----------------------------------------------------------------------------
// GET /api/core/karma/balance/
// ----------------------------------------------------------------------------

// handleBalance reports earned, spent and spendable karma.
func (c *Component) handleBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := c.store.KarmaBalance(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "User not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, bal)
}

// ----------------------------------------------------------------------------
// GET /api/core/karma/history/
// ----------------------------------------------------------------------------

func (c *Component) handlePointsHistory(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.PointsHistory(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}

// ----------------------------------------------------------------------------
// GET /api/core/redeem/offers/
// ----------------------------------------------------------------------------

// handleOffers lists active offers, cheapest first, optionally with the
// caller's interests ranked ahead.
func (c *Component) handleOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := c.store.ListOffers(r.Context())
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	if c.config.RankOffersByInterest {
		user, err := c.store.GetUser(r.Context(), auth.UserID(r.Context()))
		if err != nil {
			api.WriteStoreError(w, c.logger, err, "User not found")
			return
		}
		rankByInterest(offers, user.InterestTags)
	}
	api.WriteJSON(w, http.StatusOK, offers)
}

// rankByInterest stably moves offers sharing a tag with interests to the
// front.
func rankByInterest(offers []*storage.RedeemOffer, interests []string) {
	if len(interests) == 0 {
		return
	}
	matches := func(o *storage.RedeemOffer) bool {
		return slices.ContainsFunc(o.InterestTags, func(tag string) bool {
			return slices.Contains(interests, tag)
		})
	}
	slices.SortStableFunc(offers, func(a, b *storage.RedeemOffer) int {
		ma, mb := matches(a), matches(b)
		switch {
		case ma == mb:
			return 0
		case ma:
			return -1
		default:
			return 1
		}
	})
}

// ----------------------------------------------------------------------------
// POST /api/core/redeem/{offer_id}/
// ----------------------------------------------------------------------------

type redeemResponse struct {
	Message    string              `json:"message"`
	Redemption *storage.Redemption `json:"redemption"`
	NewBalance int                 `json:"new_balance"`
}

// handleRedeem spends karma on an offer.
func (c *Component) handleRedeem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	offerID, ok := api.PathID(r, "offer_id")
	if !ok {
		c.countRedemption(outcomeNotFound)
		api.WriteError(w, http.StatusNotFound, "Offer not found or inactive")
		return
	}

	red, offer, balance, err := c.store.Redeem(r.Context(), userID, offerID)
	if err != nil {
		var insufficient *storage.InsufficientKarmaError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.countRedemption(outcomeNotFound)
		case errors.As(err, &insufficient):
			c.countRedemption(outcomeInsufficient)
			c.logger.Debug("Redemption refused", "user_id", userID, "offer_id", offerID,
				"need", insufficient.Need, "have", insufficient.Have)
		default:
			c.countRedemption(outcomeError)
		}
		api.WriteStoreError(w, c.logger, err, "Offer not found or inactive")
		return
	}
	c.countRedemption(outcomeRedeemed)

	c.logger.Info("Offer redeemed",
		"user_id", userID,
		"offer_id", offer.ID,
		"points", red.PointsSpent,
		"new_balance", balance)
	api.WriteJSON(w, http.StatusCreated, redeemResponse{
		Message:    fmt.Sprintf("Successfully redeemed %d%% off at %s!", offer.DiscountPercent, offer.CompanyName),
		Redemption: red,
		NewBalance: balance,
	})
}

func (c *Component) countRedemption(outcome string) {
	if c.metrics != nil {
		c.metrics.Redemptions.WithLabelValues(outcome).Inc()
	}
}

// ----------------------------------------------------------------------------
// GET /api/core/redeem/history/
// ----------------------------------------------------------------------------

func (c *Component) handleRedemptionHistory(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.RedemptionHistory(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}
