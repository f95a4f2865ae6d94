package karmaapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/sangam/api/apitest"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/storage"
	"github.com/c360studio/sangam/storage/storagetest"
)

// setupTestComponent creates a Component backed by a temp store.
func setupTestComponent(t *testing.T) *Component {
	t.Helper()

	return &Component{
		name:    "karma-api",
		config:  DefaultConfig(),
		store:   storagetest.Open(t),
		issuer:  apitest.NewIssuer(t),
		metrics: metric.New(),
		logger:  slog.Default(),
	}
}

// registerHandlers wires the component's handlers into a fresh mux and returns a test server.
func registerHandlers(c *Component) *httptest.Server {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api/core", mux)
	return httptest.NewServer(mux)
}

func createOffer(t *testing.T, c *Component, company string, points int, active bool, tags ...string) *storage.RedeemOffer {
	t.Helper()
	o := &storage.RedeemOffer{
		CompanyName:     company,
		Description:     company + " discount",
		DiscountPercent: 20,
		PointsRequired:  points,
		InterestTags:    tags,
		IsActive:        active,
	}
	require.NoError(t, c.store.UpsertOffer(context.Background(), o))
	return o
}

func withKarma(score int) func(*storage.User) {
	return func(u *storage.User) { u.KarmaScore = score }
}

func TestBalanceAndHistory(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	ctx := context.Background()
	u := storagetest.CreateUser(t, c.store, "karmic", storage.RoleFounder, withKarma(15))
	require.NoError(t, c.store.AwardPoints(ctx, u.ID, 10, "Weekly pulse"))
	require.NoError(t, c.store.AwardPoints(ctx, u.ID, 5, "Helped a founder"))
	token := apitest.Token(t, c.issuer, u)

	bal := apitest.Do(t, http.MethodGet, srv.URL+"/api/core/karma/balance/", token, nil)
	require.Equal(t, http.StatusOK, bal.Status)
	assert.JSONEq(t, `{"earned":30,"spent":0,"balance":30}`, string(bal.Body))

	hist := apitest.Do(t, http.MethodGet, srv.URL+"/api/core/karma/history/", token, nil)
	require.Equal(t, http.StatusOK, hist.Status)
	var awards []storage.PointAward
	hist.Decode(t, &awards)
	require.Len(t, awards, 2)
	assert.Equal(t, "Helped a founder", awards[0].Reason)
}

func TestOffers(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	createOffer(t, c, "Cheap Cloud", 10, true, "Tech")
	createOffer(t, c, "Farm Supply", 50, true, "Agriculture")
	createOffer(t, c, "Retired Perk", 5, false)
	u := storagetest.CreateUser(t, c.store, "farmer", storage.RoleFounder, func(u *storage.User) {
		u.InterestTags = []string{"Agriculture"}
	})

	names := func(token string) []string {
		resp := apitest.Do(t, http.MethodGet, srv.URL+"/api/core/redeem/offers/", token, nil)
		require.Equal(t, http.StatusOK, resp.Status)
		var offers []storage.RedeemOffer
		resp.Decode(t, &offers)
		out := make([]string, 0, len(offers))
		for _, o := range offers {
			out = append(out, o.CompanyName)
		}
		return out
	}

	assert.Equal(t, []string{"Farm Supply", "Cheap Cloud"}, names(apitest.Token(t, c.issuer, u)))

	c.config.RankOffersByInterest = false
	assert.Equal(t, []string{"Cheap Cloud", "Farm Supply"}, names(apitest.Token(t, c.issuer, u)))
}

func TestRedeem(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	offer := createOffer(t, c, "Khalti", 40, true)
	inactive := createOffer(t, c, "Gone", 1, false)
	u := storagetest.CreateUser(t, c.store, "saver", storage.RoleFounder, withKarma(50))
	token := apitest.Token(t, c.issuer, u)
	url := func(id int64) string { return srv.URL + "/api/core/redeem/" + apitest.ID(id) + "/" }

	resp := apitest.Do(t, http.MethodPost, url(offer.ID), token, nil)
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var out struct {
		Message    string             `json:"message"`
		Redemption storage.Redemption `json:"redemption"`
		NewBalance int                `json:"new_balance"`
	}
	resp.Decode(t, &out)
	assert.Equal(t, "Successfully redeemed 20% off at Khalti!", out.Message)
	assert.Equal(t, 10, out.NewBalance)
	assert.Equal(t, 40, out.Redemption.PointsSpent)
	assert.Regexp(t, `^SGM-[0-9A-F]{10}$`, out.Redemption.Code)

	short := apitest.Do(t, http.MethodPost, url(offer.ID), token, nil)
	require.Equal(t, http.StatusBadRequest, short.Status)
	assert.JSONEq(t, `{"error":"Insufficient karma points. Need 40, have 10"}`, string(short.Body))

	gone := apitest.Do(t, http.MethodPost, url(inactive.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, gone.Status)
	assert.JSONEq(t, `{"error":"Offer not found or inactive"}`, string(gone.Body))

	hist := apitest.Do(t, http.MethodGet, srv.URL+"/api/core/redeem/history/", token, nil)
	require.Equal(t, http.StatusOK, hist.Status)
	var reds []storage.Redemption
	hist.Decode(t, &reds)
	require.Len(t, reds, 1)
	assert.Equal(t, "Khalti", reds[0].CompanyName)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Redemptions.WithLabelValues(outcomeRedeemed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Redemptions.WithLabelValues(outcomeInsufficient)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Redemptions.WithLabelValues(outcomeNotFound)))
}

func TestConcurrentRedemptionsNeverOverdraw(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	offer := createOffer(t, c, "Daraz", 30, true)
	u := storagetest.CreateUser(t, c.store, "racer", storage.RoleFounder, withKarma(100))
	token := apitest.Token(t, c.issuer, u)

	const attempts = 8
	statuses := make([]int, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = apitest.Do(t, http.MethodPost, srv.URL+"/api/core/redeem/"+apitest.ID(offer.ID)+"/", token, nil).Status
		}()
	}
	wg.Wait()

	var created int
	for _, s := range statuses {
		if s == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusBadRequest, s)
		}
	}
	assert.Equal(t, 3, created)

	bal, err := c.store.KarmaBalance(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, bal.Balance)
}
