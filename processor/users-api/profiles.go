package usersapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// requireRole writes a 403 unless the caller has role.
func requireRole(w http.ResponseWriter, r *http.Request, role storage.Role, msg string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok || storage.Role(claims.Role) != role {
		api.WriteError(w, http.StatusForbidden, msg)
		return false
	}
	return true
}

// ----------------------------------------------------------------------------
// GET|PUT /api/users/profile/founder/
// ----------------------------------------------------------------------------

const founderOnly = "Only founders have a founder profile."

// handleGetFounderProfile returns the caller's founder profile, creating an
// empty one on first access.
func (c *Component) handleGetFounderProfile(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, storage.RoleFounder, founderOnly) {
		return
	}
	userID := auth.UserID(r.Context())

	p, err := c.store.GetFounderProfile(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		p = &storage.FounderProfile{UserID: userID}
		err = c.store.UpsertFounderProfile(r.Context(), p)
	}
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "Profile not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

type founderProfileRequest struct {
	CompanyName string            `json:"company_name"`
	FoundedDate *storage.DateOnly `json:"founded_date"`
	TeamSize    int               `json:"team_size"`
	Traction    string            `json:"traction"`
	Website     string            `json:"website"`
}

// handlePutFounderProfile replaces the caller's founder profile.
func (c *Component) handlePutFounderProfile(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, storage.RoleFounder, founderOnly) {
		return
	}

	var req founderProfileRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TeamSize < 0 {
		api.WriteFieldErrors(w, api.FieldErrors{"team_size": {"Ensure this value is greater than or equal to 1."}})
		return
	}

	p := &storage.FounderProfile{
		UserID:      auth.UserID(r.Context()),
		CompanyName: strings.TrimSpace(req.CompanyName),
		FoundedDate: req.FoundedDate,
		TeamSize:    req.TeamSize,
		Traction:    c.policy.Sanitize(strings.TrimSpace(req.Traction)),
		Website:     strings.TrimSpace(req.Website),
	}
	if err := c.store.UpsertFounderProfile(r.Context(), p); err != nil {
		api.WriteStoreError(w, c.logger, err, "Profile not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// ----------------------------------------------------------------------------
// GET|PUT /api/users/profile/investor/
// ----------------------------------------------------------------------------

const investorOnly = "Only investors have an investor profile."

// handleGetInvestorProfile returns the caller's investor profile, creating
// an empty one on first access.
func (c *Component) handleGetInvestorProfile(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, storage.RoleInvestor, investorOnly) {
		return
	}
	userID := auth.UserID(r.Context())

	p, err := c.store.GetInvestorProfile(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		p = &storage.InvestorProfile{UserID: userID}
		err = c.store.UpsertInvestorProfile(r.Context(), p)
	}
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "Profile not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

type investorProfileRequest struct {
	FirmName         string          `json:"firm_name"`
	InvestmentStage  string          `json:"investment_stage"`
	AvailableCapital decimal.Decimal `json:"available_capital"`
	FocusAreas       string          `json:"focus_areas"`
}

// handlePutInvestorProfile replaces the caller's investor profile.
func (c *Component) handlePutInvestorProfile(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, storage.RoleInvestor, investorOnly) {
		return
	}

	var req investorProfileRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	stage := strings.ToUpper(strings.TrimSpace(req.InvestmentStage))
	if stage != "" && !validInvestmentStage(stage) {
		errs.Add("investment_stage", invalidChoice(req.InvestmentStage))
	}
	if req.AvailableCapital.IsNegative() {
		errs.Add("available_capital", "Ensure this value is greater than or equal to 0.")
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	p := &storage.InvestorProfile{
		UserID:           auth.UserID(r.Context()),
		FirmName:         strings.TrimSpace(req.FirmName),
		InvestmentStage:  stage,
		AvailableCapital: req.AvailableCapital,
		FocusAreas:       strings.TrimSpace(req.FocusAreas),
	}
	if err := c.store.UpsertInvestorProfile(r.Context(), p); err != nil {
		api.WriteStoreError(w, c.logger, err, "Profile not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

func validInvestmentStage(s string) bool {
	for _, stage := range storage.InvestmentStages {
		if stage == s {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// GET|PUT /api/users/profile/expert/
// ----------------------------------------------------------------------------

const expertOnly = "Only experts have an expert profile."

// handleGetExpertProfile returns the caller's marketplace listing, creating
// an empty one on first access.
func (c *Component) handleGetExpertProfile(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, storage.RoleExpert, expertOnly) {
		return
	}
	userID := auth.UserID(r.Context())

	p, err := c.store.GetExpertByUser(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		p = &storage.ExpertProfile{UserID: userID, Specialization: "General"}
		err = c.store.UpsertExpertProfile(r.Context(), p)
	}
	if err != nil {
		api.WriteStoreError(w, c.logger, err, "Profile not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

type expertProfileRequest struct {
	Specialization string          `json:"specialization"`
	Bio            string          `json:"bio"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
}

// handlePutExpertProfile replaces the caller's listing. Rating and vetting
// are managed by the platform and are not writable.
func (c *Component) handlePutExpertProfile(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, storage.RoleExpert, expertOnly) {
		return
	}

	var req expertProfileRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := api.FieldErrors{}
	if strings.TrimSpace(req.Specialization) == "" {
		errs.Add("specialization", "This field is required.")
	}
	if req.HourlyRate.IsNegative() {
		errs.Add("hourly_rate", "Ensure this value is greater than or equal to 0.")
	}
	if !errs.Empty() {
		api.WriteFieldErrors(w, errs)
		return
	}

	p := &storage.ExpertProfile{
		UserID:         auth.UserID(r.Context()),
		Specialization: strings.TrimSpace(req.Specialization),
		Bio:            c.policy.Sanitize(strings.TrimSpace(req.Bio)),
		HourlyRate:     req.HourlyRate,
	}
	if err := c.store.UpsertExpertProfile(r.Context(), p); err != nil {
		api.WriteStoreError(w, c.logger, err, "Profile not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}
