package usersapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/sangam/api/apitest"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/natsutil/natstest"
	"github.com/c360studio/sangam/storage"
	"github.com/c360studio/sangam/storage/storagetest"
)

// setupTestComponent creates a Component backed by a temp store and an
// embedded NATS session bucket.
func setupTestComponent(t *testing.T) *Component {
	t.Helper()

	conn := natstest.Start(t)
	sessions, err := auth.NewSessionStore(context.Background(), conn.JS, time.Hour)
	require.NoError(t, err)

	return &Component{
		name:     "users-api",
		config:   DefaultConfig(),
		store:    storagetest.Open(t),
		issuer:   apitest.NewIssuer(t),
		sessions: sessions,
		policy:   bluemonday.StrictPolicy(),
		logger:   slog.Default(),
	}
}

// registerHandlers wires the component's handlers into a fresh mux and returns a test server.
func registerHandlers(c *Component) *httptest.Server {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api/users", mux)
	return httptest.NewServer(mux)
}

func register(t *testing.T, srv *httptest.Server, body map[string]any) *apitest.Response {
	t.Helper()
	return apitest.Do(t, http.MethodPost, srv.URL+"/api/users/register/", "", body)
}

func TestRegister(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp := register(t, srv, map[string]any{
		"username":      "ramesh",
		"email":         "ramesh@example.com",
		"password":      "secret1",
		"persona":       "hacker",
		"province":      "BAGMATI",
		"bio":           "<script>x</script>Builds <b>agritech</b>",
		"interest_tags": []string{"AI", " Tech ", "AI"},
		"karma_score":   999,
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))

	body := resp.Map(t)
	assert.Equal(t, "ramesh", body["username"])
	assert.Equal(t, "FOUNDER", body["role"])
	assert.Equal(t, "HACKER", body["persona"])
	assert.Equal(t, "NONE", body["startup_stage"])
	assert.Equal(t, "Builds agritech", body["bio"])
	assert.Equal(t, []any{"AI", "Tech"}, body["interest_tags"])
	assert.EqualValues(t, 0, body["karma_score"], "karma_score is read-only")
	assert.NotContains(t, body, "password")

	u, err := c.store.GetUserByUsername(context.Background(), "ramesh")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(u.PasswordHash, "secret1"))
}

func TestRegisterValidation(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	require.Equal(t, http.StatusCreated, register(t, srv, map[string]any{
		"username": "sita", "email": "sita@example.com", "password": "secret1",
	}).Status)

	tests := []struct {
		name  string
		body  map[string]any
		field string
		msg   string
	}{
		{"username taken", map[string]any{"username": "sita", "email": "new@example.com", "password": "secret1"},
			"username", "This username is already taken."},
		{"email registered", map[string]any{"username": "gita", "email": "sita@example.com", "password": "secret1"},
			"email", "This email is already registered."},
		{"short password", map[string]any{"username": "gita", "email": "gita@example.com", "password": "123"},
			"password", "Password must be at least 6 characters long."},
		{"missing username", map[string]any{"email": "gita@example.com", "password": "secret1"},
			"username", "This field is required."},
		{"bad role", map[string]any{"username": "gita", "email": "gita@example.com", "password": "secret1", "role": "ADMIN"},
			"role", `"ADMIN" is not a valid choice.`},
		{"bad province", map[string]any{"username": "gita", "email": "gita@example.com", "password": "secret1", "province": "TOKYO"},
			"province", `"TOKYO" is not a valid choice.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := register(t, srv, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Status)

			var errs map[string][]string
			resp.Decode(t, &errs)
			assert.Equal(t, []string{tt.msg}, errs[tt.field])
		})
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	require.Equal(t, http.StatusCreated, register(t, srv, map[string]any{
		"username": "hari", "email": "hari@example.com", "password": "secret1", "role": "INVESTOR",
	}).Status)

	bad := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/login/", "", map[string]string{
		"username": "hari", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, bad.Status)

	resp := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/login/", "", map[string]string{
		"username": "hari", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var login struct {
		Access  string        `json:"access"`
		Refresh string        `json:"refresh"`
		User    *storage.User `json:"user"`
	}
	resp.Decode(t, &login)
	assert.Equal(t, storage.RoleInvestor, login.User.Role)

	claims, err := c.issuer.Verify(login.Access, auth.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, claims.UserID)

	refreshed := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/token/refresh/", "", map[string]string{
		"refresh": login.Refresh,
	})
	require.Equal(t, http.StatusOK, refreshed.Status)
	assert.NotEmpty(t, refreshed.Map(t)["access"])

	// An access token is not a refresh token.
	wrongType := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/token/refresh/", "", map[string]string{
		"refresh": login.Access,
	})
	assert.Equal(t, http.StatusUnauthorized, wrongType.Status)

	out := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/logout/", login.Access, map[string]string{
		"refresh": login.Refresh,
	})
	require.Equal(t, http.StatusOK, out.Status)

	revoked := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/token/refresh/", "", map[string]string{
		"refresh": login.Refresh,
	})
	assert.Equal(t, http.StatusUnauthorized, revoked.Status)
}

func TestProfile(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	u := storagetest.CreateUser(t, c.store, "maya", storage.RoleFounder)
	storagetest.CreateUser(t, c.store, "taken", storage.RoleFounder)
	token := apitest.Token(t, c.issuer, u)

	unauth := apitest.Do(t, http.MethodGet, srv.URL+"/api/users/profile/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, unauth.Status)

	got := apitest.Do(t, http.MethodGet, srv.URL+"/api/users/profile/", token, nil)
	require.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "maya", got.Map(t)["username"])

	t.Run("patch is partial", func(t *testing.T) {
		resp := apitest.Do(t, http.MethodPatch, srv.URL+"/api/users/profile/", token, map[string]any{
			"startup_stage": "MVP",
			"first_name":    "Maya",
		})
		require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
		body := resp.Map(t)
		assert.Equal(t, "MVP", body["startup_stage"])
		assert.Equal(t, "Maya", body["first_name"])
		assert.Equal(t, "maya@example.com", body["email"])
	})

	t.Run("keeping own username is allowed", func(t *testing.T) {
		resp := apitest.Do(t, http.MethodPut, srv.URL+"/api/users/profile/", token, map[string]any{
			"username": "maya", "email": "maya@example.com",
		})
		assert.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	})

	t.Run("put requires username and email", func(t *testing.T) {
		resp := apitest.Do(t, http.MethodPut, srv.URL+"/api/users/profile/", token, map[string]any{"bio": "x"})
		require.Equal(t, http.StatusBadRequest, resp.Status)
		var errs map[string][]string
		resp.Decode(t, &errs)
		assert.Contains(t, errs, "username")
		assert.Contains(t, errs, "email")
	})

	t.Run("another member's username is rejected", func(t *testing.T) {
		resp := apitest.Do(t, http.MethodPatch, srv.URL+"/api/users/profile/", token, map[string]any{"username": "taken"})
		require.Equal(t, http.StatusBadRequest, resp.Status)
		var errs map[string][]string
		resp.Decode(t, &errs)
		assert.Equal(t, []string{"This username is already taken."}, errs["username"])
	})
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	require.Equal(t, http.StatusCreated, register(t, srv, map[string]any{
		"username": "kiran", "email": "kiran@example.com", "password": "secret1",
	}).Status)
	resp := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/login/", "", map[string]string{
		"username": "kiran", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.Status)
	login := resp.Map(t)
	access := login["access"].(string)

	wrong := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/change-password/", access, map[string]string{
		"old_password": "nope-nope", "new_password": "secret2",
	})
	require.Equal(t, http.StatusBadRequest, wrong.Status)
	assert.Contains(t, wrong.Map(t), "old_password")

	ok := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/change-password/", access, map[string]string{
		"old_password": "secret1", "new_password": "secret2",
	})
	require.Equal(t, http.StatusOK, ok.Status, string(ok.Body))

	refresh := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/token/refresh/", "", map[string]any{
		"refresh": login["refresh"],
	})
	assert.Equal(t, http.StatusUnauthorized, refresh.Status)

	relogin := apitest.Do(t, http.MethodPost, srv.URL+"/api/users/login/", "", map[string]string{
		"username": "kiran", "password": "secret2",
	})
	assert.Equal(t, http.StatusOK, relogin.Status)
}

func TestDiscovery(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	me := storagetest.CreateUser(t, c.store, "me", storage.RoleFounder, func(u *storage.User) {
		u.Persona = storage.PersonaHacker
	})
	storagetest.CreateUser(t, c.store, "hacker2", storage.RoleFounder, func(u *storage.User) {
		u.Persona = storage.PersonaHacker
	})
	storagetest.CreateUser(t, c.store, "hipster", storage.RoleFounder, func(u *storage.User) {
		u.Persona = storage.PersonaHipster
		u.InterestTags = []string{"AI", "Health"}
	})
	storagetest.CreateUser(t, c.store, "hustler", storage.RoleFounder, func(u *storage.User) {
		u.Persona = storage.PersonaHustler
		u.Province = "KOSHI"
	})
	storagetest.CreateUser(t, c.store, "investor", storage.RoleInvestor)
	token := apitest.Token(t, c.issuer, me)

	names := func(resp *apitest.Response) []string {
		var users []*storage.User
		resp.Decode(t, &users)
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.Username)
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"complementary personas", "", []string{"hustler", "hipster"}},
		{"explicit persona", "?persona=hacker", []string{"hacker2"}},
		{"tags overlap", "?tags=Health,Finance", []string{"hipster"}},
		{"province", "?province=koshi", []string{"hustler"}},
		{"search", "?search=HIP", []string{"hipster"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := apitest.Do(t, http.MethodGet, srv.URL+"/api/users/discovery/"+tt.query, token, nil)
			require.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, tt.want, names(resp))
		})
	}
}

func TestInterestTags(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	resp := apitest.Do(t, http.MethodGet, srv.URL+"/api/users/interest-tags/", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var body struct {
		Tags []string `json:"tags"`
	}
	resp.Decode(t, &body)
	assert.Equal(t, storage.InterestTags, body.Tags)
}

func TestRoleProfiles(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	founder := storagetest.CreateUser(t, c.store, "founder", storage.RoleFounder)
	expert := storagetest.CreateUser(t, c.store, "expert", storage.RoleExpert)
	investor := storagetest.CreateUser(t, c.store, "investor", storage.RoleInvestor)

	t.Run("wrong role is forbidden", func(t *testing.T) {
		resp := apitest.Do(t, http.MethodGet, srv.URL+"/api/users/profile/expert/", apitest.Token(t, c.issuer, founder), nil)
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("founder profile defaults and update", func(t *testing.T) {
		token := apitest.Token(t, c.issuer, founder)
		got := apitest.Do(t, http.MethodGet, srv.URL+"/api/users/profile/founder/", token, nil)
		require.Equal(t, http.StatusOK, got.Status)
		assert.EqualValues(t, 1, got.Map(t)["team_size"])

		put := apitest.Do(t, http.MethodPut, srv.URL+"/api/users/profile/founder/", token, map[string]any{
			"company_name": "KrishiTech", "founded_date": "2023-04-14", "team_size": 4,
		})
		require.Equal(t, http.StatusOK, put.Status, string(put.Body))
		body := put.Map(t)
		assert.Equal(t, "KrishiTech", body["company_name"])
		assert.Equal(t, "2023-04-14", body["founded_date"])
	})

	t.Run("expert listing", func(t *testing.T) {
		token := apitest.Token(t, c.issuer, expert)
		put := apitest.Do(t, http.MethodPut, srv.URL+"/api/users/profile/expert/", token, map[string]any{
			"specialization": "Legal", "hourly_rate": "2500.50", "bio": "Company law",
		})
		require.Equal(t, http.StatusOK, put.Status, string(put.Body))

		p, err := c.store.GetExpertByUser(context.Background(), expert.ID)
		require.NoError(t, err)
		assert.Equal(t, "2500.5", p.HourlyRate.String())
		assert.Equal(t, "5", p.Rating.String())
	})

	t.Run("investor stage is validated", func(t *testing.T) {
		token := apitest.Token(t, c.issuer, investor)
		bad := apitest.Do(t, http.MethodPut, srv.URL+"/api/users/profile/investor/", token, map[string]any{
			"investment_stage": "IPO",
		})
		assert.Equal(t, http.StatusBadRequest, bad.Status)

		ok := apitest.Do(t, http.MethodPut, srv.URL+"/api/users/profile/investor/", token, map[string]any{
			"firm_name": "Himalayan Capital", "investment_stage": "series_a", "available_capital": 1000000,
		})
		require.Equal(t, http.StatusOK, ok.Status, string(ok.Body))
		assert.Equal(t, "SERIES_A", ok.Map(t)["investment_stage"])
	})
}
