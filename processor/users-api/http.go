package usersapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// RegisterHTTPHandlers registers all users-api HTTP handlers under the given prefix.
// The prefix should be the path segment without a trailing slash (e.g. "api/users").
// Handlers are registered as:
//
//	POST      <prefix>/register/
//	POST      <prefix>/login/
//	POST      <prefix>/token/refresh/
//	POST      <prefix>/logout/
//	GET|PUT|PATCH <prefix>/profile/
//	POST      <prefix>/change-password/
//	GET       <prefix>/discovery/
//	GET       <prefix>/interest-tags/
//	GET|PUT   <prefix>/profile/{founder,investor,expert}/
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = api.Prefix(prefix)

	mux.HandleFunc("POST "+prefix+"register/{$}", c.handleRegister)
	mux.HandleFunc("POST "+prefix+"login/{$}", c.handleLogin)
	mux.HandleFunc("POST "+prefix+"token/refresh/{$}", c.handleRefresh)
	mux.Handle("POST "+prefix+"logout/{$}", c.issuer.RequireFunc(c.handleLogout))
	mux.Handle("GET "+prefix+"profile/{$}", c.issuer.RequireFunc(c.handleGetProfile))
	mux.Handle("PUT "+prefix+"profile/{$}", c.issuer.RequireFunc(c.handleUpdateProfile))
	mux.Handle("PATCH "+prefix+"profile/{$}", c.issuer.RequireFunc(c.handleUpdateProfile))
	mux.Handle("POST "+prefix+"change-password/{$}", c.issuer.RequireFunc(c.handleChangePassword))
	mux.Handle("GET "+prefix+"discovery/{$}", c.issuer.RequireFunc(c.handleDiscovery))
	mux.HandleFunc("GET "+prefix+"interest-tags/{$}", c.handleInterestTags)

	mux.Handle("GET "+prefix+"profile/founder/{$}", c.issuer.RequireFunc(c.handleGetFounderProfile))
	mux.Handle("PUT "+prefix+"profile/founder/{$}", c.issuer.RequireFunc(c.handlePutFounderProfile))
	mux.Handle("GET "+prefix+"profile/investor/{$}", c.issuer.RequireFunc(c.handleGetInvestorProfile))
	mux.Handle("PUT "+prefix+"profile/investor/{$}", c.issuer.RequireFunc(c.handlePutInvestorProfile))
	mux.Handle("GET "+prefix+"profile/expert/{$}", c.issuer.RequireFunc(c.handleGetExpertProfile))
	mux.Handle("PUT "+prefix+"profile/expert/{$}", c.issuer.RequireFunc(c.handlePutExpertProfile))
}

// userFields are the writable member fields. Pointers distinguish absent
// fields from empty ones so PATCH only touches what was sent.
type userFields struct {
	Username        *string   `json:"username"`
	Email           *string   `json:"email"`
	FirstName       *string   `json:"first_name"`
	LastName        *string   `json:"last_name"`
	Persona         *string   `json:"persona"`
	NagarikID       *string   `json:"nagarik_id"`
	LinkedInProfile *string   `json:"linkedin_profile"`
	StartupStage    *string   `json:"startup_stage"`
	Province        *string   `json:"province"`
	PhoneNumber     *string   `json:"phone_number"`
	Bio             *string   `json:"bio"`
	InterestTags    *[]string `json:"interest_tags"`
}

// apply validates the fields and copies them onto u, collecting field errors.
func (c *Component) apply(u *storage.User, f *userFields, errs api.FieldErrors) {
	if f.Username != nil {
		name := strings.TrimSpace(*f.Username)
		if name == "" {
			errs.Add("username", "This field may not be blank.")
		} else if len(name) > 150 {
			errs.Add("username", "Ensure this field has no more than 150 characters.")
		}
		u.Username = name
	}
	if f.Email != nil {
		email := strings.TrimSpace(*f.Email)
		if email == "" {
			errs.Add("email", "This field may not be blank.")
		} else if !strings.Contains(email, "@") {
			errs.Add("email", "Enter a valid email address.")
		}
		u.Email = email
	}
	if f.FirstName != nil {
		u.FirstName = strings.TrimSpace(*f.FirstName)
	}
	if f.LastName != nil {
		u.LastName = strings.TrimSpace(*f.LastName)
	}
	if f.Persona != nil {
		p := storage.Persona(strings.ToUpper(*f.Persona))
		if !storage.ValidPersona(p) {
			errs.Add("persona", invalidChoice(*f.Persona))
		}
		u.Persona = p
	}
	if f.NagarikID != nil {
		u.NagarikID = strings.TrimSpace(*f.NagarikID)
	}
	if f.LinkedInProfile != nil {
		link := strings.TrimSpace(*f.LinkedInProfile)
		if link != "" && !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			errs.Add("linkedin_profile", "Enter a valid URL.")
		}
		u.LinkedInProfile = link
	}
	if f.StartupStage != nil {
		st := storage.Stage(strings.ToUpper(*f.StartupStage))
		if !storage.ValidStage(st) {
			errs.Add("startup_stage", invalidChoice(*f.StartupStage))
		}
		u.StartupStage = st
	}
	if f.Province != nil {
		p := strings.ToUpper(*f.Province)
		if !storage.ValidProvince(p) {
			errs.Add("province", invalidChoice(*f.Province))
		}
		u.Province = p
	}
	if f.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*f.PhoneNumber)
	}
	if f.Bio != nil {
		u.Bio = c.policy.Sanitize(strings.TrimSpace(*f.Bio))
	}
	if f.InterestTags != nil {
		u.InterestTags = cleanTags(*f.InterestTags)
	}
}

// checkUnique reports username and email collisions with other members.
func (c *Component) checkUnique(r *http.Request, u *storage.User, errs api.FieldErrors) error {
	if _, bad := errs["username"]; !bad && u.Username != "" {
		taken, err := c.store.UsernameTaken(r.Context(), u.Username, u.ID)
		if err != nil {
			return err
		}
		if taken {
			errs.Add("username", "This username is already taken.")
		}
	}
	if _, bad := errs["email"]; !bad && u.Email != "" {
		taken, err := c.store.EmailTaken(r.Context(), u.Email, u.ID)
		if err != nil {
			return err
		}
		if taken {
			errs.Add("email", "This email is already registered.")
		}
	}
	return nil
}

func invalidChoice(v string) string {
	return fmt.Sprintf("%q is not a valid choice.", v)
}

// cleanTags trims tags and drops blanks and duplicates, keeping order.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func subjectOf(u *storage.User) auth.Subject {
	return auth.Subject{UserID: u.ID, Username: u.Username, Role: string(u.Role)}
}

// ----------------------------------------------------------------------------
// POST /api/users/register/
// ----------------------------------------------------------------------------

type registerRequest struct {
	userFields
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

// handleRegister creates a member account.
func (c *Component) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	if req.Username == nil {
		errs.Add("username", "This field is required.")
	}
	if req.Email == nil {
		errs.Add("email", "This field is required.")
	}
	if req.Password == nil {
		errs.Add("password", "This field is required.")
	} else if len(*req.Password) < auth.MinPasswordLength {
		errs.Add("password", "Password must be at least 6 characters long.")
	}

	u := &storage.User{}
	c.apply(u, &req.userFields, errs)
	if req.Role != nil {
		role := storage.Role(strings.ToUpper(*req.Role))
		if !storage.ValidRole(role) {
			errs.Add("role", invalidChoice(*req.Role))
		}
		u.Role = role
	}
	if err := c.checkUnique(r, u, errs); err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	hash, err := auth.HashPassword(*req.Password)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	u.PasswordHash = hash

	if err := c.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			api.WriteFieldErrors(w, api.FieldErrors{"username": {"This username is already taken."}})
			return
		}
		api.WriteStoreError(w, c.logger, err, "")
		return
	}

	c.logger.Info("User registered", "user_id", u.ID, "role", u.Role)
	api.WriteJSON(w, http.StatusCreated, u)
}

// ----------------------------------------------------------------------------
// POST /api/users/login/
// ----------------------------------------------------------------------------

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string        `json:"access"`
	Refresh string        `json:"refresh"`
	User    *storage.User `json:"user"`
}

// handleLogin exchanges credentials for an access/refresh token pair.
func (c *Component) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		errs := api.FieldErrors{}
		if req.Username == "" {
			errs.Add("username", "This field is required.")
		}
		if req.Password == "" {
			errs.Add("password", "This field is required.")
		}
		api.WriteFieldErrors(w, errs)
		return
	}

	u, err := c.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	if u == nil || !u.IsActive || !auth.CheckPassword(u.PasswordHash, req.Password) {
		api.WriteError(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}

	access, err := c.issuer.IssueAccess(subjectOf(u))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	refresh, claims, err := c.issuer.IssueRefresh(subjectOf(u))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	if c.sessions != nil {
		if err := c.sessions.Record(r.Context(), claims); err != nil {
			api.WriteStoreError(w, c.logger, err, "")
			return
		}
	}

	c.logger.Debug("User logged in", "user_id", u.ID)
	api.WriteJSON(w, http.StatusOK, loginResponse{Access: access, Refresh: refresh, User: u})
}

// ----------------------------------------------------------------------------
// POST /api/users/token/refresh/
// ----------------------------------------------------------------------------

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// verifyRefresh checks a refresh token's signature and that its session
// was not revoked.
func (c *Component) verifyRefresh(r *http.Request, raw string) (*auth.Claims, error) {
	claims, err := c.issuer.Verify(raw, auth.TokenRefresh)
	if err != nil {
		return nil, err
	}
	if c.sessions != nil {
		if err := c.sessions.Check(r.Context(), claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// handleRefresh issues a new access token for a live refresh token.
func (c *Component) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Refresh == "" {
		api.WriteFieldErrors(w, api.FieldErrors{"refresh": {"This field is required."}})
		return
	}

	claims, err := c.verifyRefresh(r, req.Refresh)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrSessionRevoked) {
			api.WriteError(w, http.StatusUnauthorized, "Token is invalid or expired")
			return
		}
		api.WriteStoreError(w, c.logger, err, "")
		return
	}

	access, err := c.issuer.IssueAccess(claims.Subject)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"access": access})
}

// ----------------------------------------------------------------------------
// POST /api/users/logout/
// ----------------------------------------------------------------------------

// handleLogout revokes the caller's refresh token.
func (c *Component) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Refresh == "" {
		api.WriteFieldErrors(w, api.FieldErrors{"refresh": {"This field is required."}})
		return
	}

	claims, err := c.issuer.Verify(req.Refresh, auth.TokenRefresh)
	if err != nil || claims.UserID != auth.UserID(r.Context()) {
		api.WriteError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	if c.sessions != nil {
		if err := c.sessions.Revoke(r.Context(), claims); err != nil {
			api.WriteStoreError(w, c.logger, err, "")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ----------------------------------------------------------------------------
// GET|PUT|PATCH /api/users/profile/
// ----------------------------------------------------------------------------

// currentUser loads the authenticated member, writing a 404 if the
// account no longer exists.
func (c *Component) currentUser(w http.ResponseWriter, r *http.Request) (*storage.User, bool) {
	u, err := c.store.GetUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "User not found")
		return nil, false
	}
	return u, true
}

// handleGetProfile returns the signed-in member.
func (c *Component) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := c.currentUser(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, u)
}

// handleUpdateProfile applies a full (PUT) or partial (PATCH) update.
// Role, karma score and verification are not writable here.
func (c *Component) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := c.currentUser(w, r)
	if !ok {
		return
	}

	var req userFields
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	if r.Method == http.MethodPut {
		if req.Username == nil {
			errs.Add("username", "This field is required.")
		}
		if req.Email == nil {
			errs.Add("email", "This field is required.")
		}
	}
	c.apply(u, &req, errs)
	if err := c.checkUnique(r, u, errs); err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	if err := c.store.UpdateUser(r.Context(), u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			api.WriteFieldErrors(w, api.FieldErrors{"username": {"This username is already taken."}})
			return
		}
		api.WriteStoreError(w, c.logger, err, "User not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, u)
}

// ----------------------------------------------------------------------------
// POST /api/users/change-password/
// ----------------------------------------------------------------------------

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// handleChangePassword replaces the password and revokes every refresh
// token the member holds.
func (c *Component) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := c.currentUser(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	if !auth.CheckPassword(u.PasswordHash, req.OldPassword) {
		errs.Add("old_password", "Wrong password.")
	}
	if len(req.NewPassword) < auth.MinPasswordLength {
		errs.Add("new_password", "Password must be at least 6 characters long.")
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	if err := c.store.SetPassword(r.Context(), u.ID, hash); err != nil {
		api.WriteStoreError(w, c.logger, err, "User not found")
		return
	}

	revoked := 0
	if c.sessions != nil {
		if revoked, err = c.sessions.RevokeAll(r.Context(), u.ID); err != nil {
			c.logger.Warn("Failed to revoke sessions after password change", "user_id", u.ID, "error", err)
		}
	}
	c.logger.Info("Password changed", "user_id", u.ID, "sessions_revoked", revoked)
	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully."})
}

// ----------------------------------------------------------------------------
// GET /api/users/discovery/
// ----------------------------------------------------------------------------

// handleDiscovery lists co-founder candidates. Without an explicit persona
// filter the caller's own persona is excluded, so hackers see hipsters and
// hustlers first.
func (c *Component) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	u, ok := c.currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := storage.DiscoveryFilter{
		ExcludeUserID:  u.ID,
		ExcludePersona: u.Persona,
		Search:         strings.TrimSpace(q.Get("search")),
		Persona:        storage.Persona(strings.ToUpper(strings.TrimSpace(q.Get("persona")))),
		Stage:          storage.Stage(strings.ToUpper(strings.TrimSpace(q.Get("stage")))),
		Province:       strings.ToUpper(strings.TrimSpace(q.Get("province"))),
		Limit:          c.config.DiscoveryLimit,
	}
	if tags := q.Get("tags"); tags != "" {
		filter.Tags = cleanTags(strings.Split(tags, ","))
	}

	users, err := c.store.DiscoverFounders(r.Context(), filter)
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "")
		return
	}
	api.WriteJSON(w, http.StatusOK, users)
}

// ----------------------------------------------------------------------------
// GET /api/users/interest-tags/
// ----------------------------------------------------------------------------

// handleInterestTags returns the tag catalogue.
func (c *Component) handleInterestTags(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string][]string{"tags": storage.InterestTags})
}
